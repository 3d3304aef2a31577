package models

import "time"

// SkipReason names why a catalog record never became a Listing.
type SkipReason string

const (
	SkipNoPrice   SkipReason = "no_price"
	SkipNoStock   SkipReason = "no_stock"
	SkipLowValue  SkipReason = "low_value"
	SkipOverPrice SkipReason = "over_price"
	SkipInvalid   SkipReason = "invalid"
)

// CycleReport summarises one refresh cycle for the scheduler.
type CycleReport struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Fetched     int
	Scored      int
	Skipped     map[SkipReason]int
	Fresh       int
	Attempted   int
	Enriched    int
	FailedItems int
	Evicted     int
	Success     bool
	Err         error
}

// InsightReport holds the computed analytics over the cached listings.
type InsightReport struct {
	TotalListings      int            `json:"totalListings"`
	InStockListings    int            `json:"inStockListings"`
	AveragePrice       float64        `json:"averagePrice"`
	MinPrice           float64        `json:"minPrice"`
	MaxPrice           float64        `json:"maxPrice"`
	BestValue          *Listing       `json:"bestValue,omitempty"`
	TopScored          []*Listing     `json:"topScored"`
	ListingsByCategory map[string]int `json:"listingsByCategory"`
}
