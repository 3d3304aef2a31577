package models

import (
	"math"
	"time"
)

// RawCatalogRecord is one catalog entry as served by the remote source.
// It only lives for the duration of a fetch cycle.
type RawCatalogRecord struct {
	SKU            int64
	Name           string
	CurrentPrice   *float64
	RegularPrice   *float64
	UnitSize       int
	Volume         float64
	AlcoholPercent float64
	Category       string
	Type           string
	ConsumerRating *float64
	AvailableUnits int
	Image          string
}

// Listing is the normalized, scored record kept in the cache.
// Identity is the SKU alone.
type Listing struct {
	SKU         int64       `json:"sku"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
	Price       float64     `json:"price"`
	Count       int         `json:"count"`
	Volume      float64     `json:"volume"`
	AlcPercent  float64     `json:"alcPercent"`
	Rating      float64     `json:"rating"`
	Value       float64     `json:"value"`
	AdjValue    float64     `json:"adjValue"`
	Sale        float64     `json:"sale"`
	Image       string      `json:"image,omitempty"`
	Inventory   map[int]int `json:"inventory"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// Clone returns a copy whose inventory map is not shared with l.
func (l *Listing) Clone() *Listing {
	c := *l
	c.Inventory = make(map[int]int, len(l.Inventory))
	for loc, stock := range l.Inventory {
		c.Inventory[loc] = stock
	}
	return &c
}

// InStockAt reports whether any of the given locations has positive stock.
func (l *Listing) InStockAt(locations []int) bool {
	for _, loc := range locations {
		if l.Inventory[loc] > 0 {
			return true
		}
	}
	return false
}

// ShelfPrice is the price a customer pays: tax applied plus the container
// deposit (0.10 per can in multi-packs, 0.20 for a single bottle).
func (l *Listing) ShelfPrice(taxMultiplier float64) float64 {
	deposit := 0.2
	if l.Count > 1 {
		deposit = 0.1 * float64(l.Count)
	}
	return math.Round((l.Price*taxMultiplier+deposit)*100) / 100
}

// Location is one statically configured store.
type Location struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
