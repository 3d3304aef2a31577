package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liquorbot/models"
)

// ErrNotFound is returned by Get when the SKU is not cached.
var ErrNotFound = errors.New("listing not found")

// ListingStore is the cache of enriched listings, keyed by SKU. Every
// mutation is a single-key operation; no multi-key transactions are needed.
type ListingStore interface {
	// Upsert inserts or replaces the listing stored under l.SKU.
	Upsert(ctx context.Context, l *models.Listing) error
	Get(ctx context.Context, sku int64) (*models.Listing, error)
	// UpdatedSince returns SKUs whose LastUpdated is at or after t.
	UpdatedSince(ctx context.Context, t time.Time) ([]int64, error)
	// UpdatedBefore returns SKUs whose LastUpdated is strictly before t.
	UpdatedBefore(ctx context.Context, t time.Time) ([]int64, error)
	Delete(ctx context.Context, sku int64) error
	// Scan returns every cached listing.
	Scan(ctx context.Context) ([]*models.Listing, error)
	Close() error
}

// SnapshotWriter persists a point-in-time copy of scored listings.
type SnapshotWriter interface {
	WriteSnapshot(listings []*models.Listing) error
	Close() error
}

// EvictStale deletes every listing last updated before cutoff and returns
// how many were removed. Deletions already done stay done on error.
func EvictStale(ctx context.Context, s ListingStore, cutoff time.Time) (int, error) {
	stale, err := s.UpdatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict: scan stale: %w", err)
	}

	removed := 0
	for _, sku := range stale {
		if err := s.Delete(ctx, sku); err != nil {
			return removed, fmt.Errorf("evict: delete %d: %w", sku, err)
		}
		removed++
	}
	return removed, nil
}
