package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"liquorbot/models"
)

// browseResponse mirrors the source's search-engine style envelope.
type browseResponse struct {
	Hits struct {
		Total      int   `json:"total"`
		TotalPages int   `json:"total_pages"`
		Hits       []hit `json:"hits"`
	} `json:"hits"`
}

type hit struct {
	Source sourceRecord `json:"_source"`
}

type sourceRecord struct {
	SKU               number    `json:"sku"`
	Name              string    `json:"name"`
	CurrentPrice      optNumber `json:"currentPrice"`
	RegularPrice      optNumber `json:"regularPrice"`
	UnitSize          number    `json:"unitSize"`
	Volume            number    `json:"volume"`
	AlcoholPercentage number    `json:"alcoholPercentage"`
	ProductCategory   *string   `json:"productCategory"`
	ProductType       *string   `json:"productType"`
	ConsumerRating    optNumber `json:"consumerRating"`
	AvailableUnits    number    `json:"availableUnits"`
	Image             *string   `json:"image"`
}

// inventoryEntry is one store row returned by the inventory endpoint.
type inventoryEntry struct {
	StoreNumber number `json:"storeNumber"`
	Inventory   struct {
		Available number `json:"available"`
	} `json:"inventory"`
}

// number accepts JSON numbers, numeric strings, and null/empty as zero.
// The source is inconsistent about quoting numeric fields.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("catalog: bad numeric string %q: %w", s, err)
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

// optNumber is a nullable number. Missing, null, and blank-string values all
// decode as absent, so callers can tell "no rating" from a rating of zero.
type optNumber struct {
	val float64
	ok  bool
}

func (o *optNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = optNumber{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*o = optNumber{}
			return nil
		}
	}
	var n number
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*o = optNumber{val: float64(n), ok: true}
	return nil
}

func optFloat(o optNumber) *float64 {
	if !o.ok {
		return nil
	}
	f := o.val
	return &f
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s sourceRecord) toRaw() *models.RawCatalogRecord {
	return &models.RawCatalogRecord{
		SKU:            int64(s.SKU),
		Name:           s.Name,
		CurrentPrice:   optFloat(s.CurrentPrice),
		RegularPrice:   optFloat(s.RegularPrice),
		UnitSize:       int(s.UnitSize),
		Volume:         float64(s.Volume),
		AlcoholPercent: float64(s.AlcoholPercentage),
		Category:       optString(s.ProductCategory),
		Type:           optString(s.ProductType),
		ConsumerRating: optFloat(s.ConsumerRating),
		AvailableUnits: int(s.AvailableUnits),
		Image:          optString(s.Image),
	}
}
