package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"liquorbot/models"
)

// ErrSkipped marks a record filtered out before enrichment. It is an expected
// outcome, not a failure.
var ErrSkipped = errors.New("listing skipped")

// SkipError carries the SKU and reason of a skipped record.
type SkipError struct {
	SKU    int64
	Reason models.SkipReason
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("sku %d skipped: %s", e.SKU, e.Reason)
}

func (e *SkipError) Unwrap() error { return ErrSkipped }

// Weights scale the three signals of the composite score.
type Weights struct {
	Value  float64
	Rating float64
	Sale   float64
}

// DefaultWeights favours strength per dollar over rating and discount.
func DefaultWeights() Weights {
	return Weights{Value: 0.9, Rating: 0.1, Sale: 0.2}
}

// ScoringConfig holds the weights and the cheap eligibility filters.
type ScoringConfig struct {
	Weights  Weights
	MinValue float64
	MaxPrice float64
}

// DefaultScoringConfig returns the production defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{Weights: DefaultWeights(), MinValue: 1.2, MaxPrice: 100}
}

const neutralRating = 2.5

// Scorer turns raw catalog records into scored listings.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a Scorer with the given configuration.
func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Normalize converts one record. A *SkipError (matching ErrSkipped) is
// returned for records that must never be cached.
func (s *Scorer) Normalize(raw *models.RawCatalogRecord) (*models.Listing, error) {
	skip := func(reason models.SkipReason) (*models.Listing, error) {
		return nil, &SkipError{SKU: raw.SKU, Reason: reason}
	}

	if raw.CurrentPrice == nil || *raw.CurrentPrice <= 0 {
		return skip(models.SkipNoPrice)
	}
	if raw.AvailableUnits <= 0 {
		return skip(models.SkipNoStock)
	}
	if raw.UnitSize < 1 || raw.Volume <= 0 || raw.AlcoholPercent < 0 || raw.AlcoholPercent > 100 {
		return skip(models.SkipInvalid)
	}

	price := *raw.CurrentPrice
	if s.cfg.MaxPrice > 0 && price > s.cfg.MaxPrice {
		return skip(models.SkipOverPrice)
	}

	totalAlcohol := float64(raw.UnitSize) * raw.Volume * (raw.AlcoholPercent / 100)
	value := totalAlcohol / price * 100
	if value < s.cfg.MinValue {
		return skip(models.SkipLowValue)
	}

	sale := 0.0
	if raw.RegularPrice != nil && *raw.RegularPrice > 0 {
		sale = (1 - price / *raw.RegularPrice) * 100
	}

	rating := neutralRating
	if raw.ConsumerRating != nil {
		rating = *raw.ConsumerRating
	}

	w := s.cfg.Weights
	adjValue := value*40*w.Value + rating*20*w.Rating + sale*2*w.Sale

	return &models.Listing{
		SKU:        raw.SKU,
		Name:       strings.TrimSpace(raw.Name),
		Type:       strings.ToLower(strings.TrimSpace(raw.Type)),
		Category:   strings.ToLower(strings.TrimSpace(raw.Category)),
		Price:      price,
		Count:      raw.UnitSize,
		Volume:     raw.Volume,
		AlcPercent: round1(raw.AlcoholPercent),
		Rating:     rating,
		Value:      round1(value),
		AdjValue:   round1(adjValue),
		Sale:       round1(sale),
		Image:      strings.TrimSpace(raw.Image),
		Inventory:  map[int]int{},
	}, nil
}

// NormalizeAll converts every record, dropping skips and tallying their
// reasons.
func (s *Scorer) NormalizeAll(raws []*models.RawCatalogRecord) ([]*models.Listing, map[models.SkipReason]int) {
	listings := make([]*models.Listing, 0, len(raws))
	skipped := make(map[models.SkipReason]int)

	for _, raw := range raws {
		l, err := s.Normalize(raw)
		if err != nil {
			var se *SkipError
			if errors.As(err, &se) {
				skipped[se.Reason]++
			}
			continue
		}
		listings = append(listings, l)
	}
	return listings, skipped
}

// DedupeBySKU collapses listings sharing a SKU. The last occurrence wins
// and takes the position of the first.
func DedupeBySKU(listings []*models.Listing) []*models.Listing {
	index := make(map[int64]int, len(listings))
	out := make([]*models.Listing, 0, len(listings))

	for _, l := range listings {
		if i, dup := index[l.SKU]; dup {
			out[i] = l
			continue
		}
		index[l.SKU] = len(out)
		out = append(out, l)
	}
	return out
}

// round1 rounds the shortest decimal form of f half away from zero to one
// decimal place, so 0.15 becomes 0.2 even though its binary value is
// slightly below the tie.
func round1(f float64) float64 {
	return decimal.NewFromFloat(f).Round(1).InexactFloat64()
}
