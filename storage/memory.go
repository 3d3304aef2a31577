package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"liquorbot/models"
)

// MemoryStore is an in-process ListingStore for tests and local runs.
// It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[int64]*models.Listing
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[int64]*models.Listing)}
}

func (m *MemoryStore) Upsert(ctx context.Context, l *models.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.SKU] = l.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sku int64) (*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[sku]
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (m *MemoryStore) UpdatedSince(ctx context.Context, t time.Time) ([]int64, error) {
	return m.filterSKUs(func(l *models.Listing) bool { return !l.LastUpdated.Before(t) }), nil
}

func (m *MemoryStore) UpdatedBefore(ctx context.Context, t time.Time) ([]int64, error) {
	return m.filterSKUs(func(l *models.Listing) bool { return l.LastUpdated.Before(t) }), nil
}

func (m *MemoryStore) Delete(ctx context.Context, sku int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, sku)
	return nil
}

// Scan returns copies ordered by SKU.
func (m *MemoryStore) Scan(ctx context.Context) ([]*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// Len returns the number of cached listings.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listings)
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) filterSKUs(keep func(*models.Listing) bool) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var skus []int64
	for sku, l := range m.listings {
		if keep(l) {
			skus = append(skus, sku)
		}
	}
	sort.Slice(skus, func(i, j int) bool { return skus[i] < skus[j] })
	return skus
}
