package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"liquorbot/models"
	"liquorbot/storage"
	"liquorbot/utils"
)

// Query selects the best listings for a shopper.
type Query struct {
	// MaxPrice is compared against the taxed price. Zero disables the filter.
	MaxPrice float64
	// Type matches type or category as a case-insensitive substring.
	// "" and "all" match everything.
	Type      string
	Locations []int
	// Limit caps the result. Zero uses the ranker default.
	Limit int
}

// Rank filters, orders and truncates listings. It never mutates its input:
// accepted listings are cloned with their inventory narrowed to the
// requested locations. Listings with equal scores keep their input order.
func Rank(listings []*models.Listing, q Query, taxMultiplier float64) []*models.Listing {
	if len(q.Locations) == 0 || q.Limit <= 0 {
		return []*models.Listing{}
	}

	typeFilter := fold(strings.TrimSpace(q.Type))
	matchAll := typeFilter == "" || typeFilter == "all"

	candidates := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if q.MaxPrice > 0 && l.Price*taxMultiplier > q.MaxPrice {
			continue
		}
		if !matchAll &&
			!strings.Contains(fold(l.Type), typeFilter) &&
			!strings.Contains(fold(l.Category), typeFilter) {
			continue
		}
		candidates = append(candidates, l)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AdjValue > candidates[j].AdjValue
	})

	results := make([]*models.Listing, 0, min(q.Limit, len(candidates)))
	for _, l := range candidates {
		if len(results) == q.Limit {
			break
		}
		if !l.InStockAt(q.Locations) {
			continue
		}
		results = append(results, narrow(l, q.Locations))
	}
	return results
}

func narrow(l *models.Listing, locations []int) *models.Listing {
	c := l.Clone()
	c.Inventory = make(map[int]int, len(locations))
	for _, loc := range locations {
		if stock, ok := l.Inventory[loc]; ok {
			c.Inventory[loc] = stock
		}
	}
	return c
}

// fold builds a fresh Caser each call; Casers carry state and are not safe
// to share between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Ranker answers queries against the listing cache.
type Ranker struct {
	store         storage.ListingStore
	taxMultiplier float64
	defaultLimit  int
	logger        *utils.Logger
}

// NewRanker creates a Ranker. defaultLimit applies when a query has none.
func NewRanker(store storage.ListingStore, taxMultiplier float64, defaultLimit int, logger *utils.Logger) *Ranker {
	return &Ranker{
		store:         store,
		taxMultiplier: taxMultiplier,
		defaultLimit:  defaultLimit,
		logger:        logger,
	}
}

// TaxMultiplier returns the multiplier applied to prices before filtering.
func (r *Ranker) TaxMultiplier() float64 { return r.taxMultiplier }

// Query scans the cache and ranks it. Listings the refresher has not
// enriched yet have no inventory and never match.
func (r *Ranker) Query(ctx context.Context, q Query) ([]*models.Listing, error) {
	if q.Limit <= 0 {
		q.Limit = r.defaultLimit
	}

	listings, err := r.store.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: scan cache: %w", err)
	}

	results := Rank(listings, q, r.taxMultiplier)
	r.logger.Debug("[query] type=%q max=%.2f locations=%v: %d of %d cached listings",
		q.Type, q.MaxPrice, q.Locations, len(results), len(listings))
	return results, nil
}
