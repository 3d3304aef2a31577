package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"liquorbot/models"
)

var baseTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func listingAt(sku int64, updated time.Time) *models.Listing {
	return &models.Listing{
		SKU:         sku,
		Name:        "Test Gin",
		Type:        "gin",
		Category:    "spirits",
		Price:       24.99,
		Count:       1,
		Volume:      0.75,
		AlcPercent:  40,
		Rating:      2.5,
		Value:       1.2,
		AdjValue:    43.7,
		Sale:        0,
		Image:       "https://cdn/1.jpg",
		Inventory:   map[int]int{101: 3, 102: 0},
		LastUpdated: updated,
	}
}

// exerciseStore checks the ListingStore contract against any backend.
func exerciseStore(t *testing.T, s ListingStore) {
	t.Helper()
	ctx := context.Background()

	old := listingAt(1, baseTime.Add(-25*time.Hour))
	recent := listingAt(2, baseTime.Add(-time.Hour))
	mid := listingAt(3, baseTime.Add(-5*time.Hour))
	for _, l := range []*models.Listing{old, recent, mid} {
		if err := s.Upsert(ctx, l); err != nil {
			t.Fatalf("Upsert %d: %v", l.SKU, err)
		}
	}

	// upsert of an existing SKU replaces, never duplicates
	updated := listingAt(2, baseTime)
	updated.Price = 19.99
	updated.Inventory = map[int]int{101: 9}
	if err := s.Upsert(ctx, updated); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}

	all, err := s.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Scan: got %d listings, want 3", len(all))
	}
	seen := map[int64]bool{}
	for _, l := range all {
		if seen[l.SKU] {
			t.Errorf("duplicate sku %d in cache", l.SKU)
		}
		seen[l.SKU] = true
	}

	got, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Price != 19.99 || got.Inventory[101] != 9 || len(got.Inventory) != 1 {
		t.Errorf("Get after re-upsert: price=%v inventory=%v", got.Price, got.Inventory)
	}
	if !got.LastUpdated.Equal(baseTime) {
		t.Errorf("LastUpdated: got %v, want %v", got.LastUpdated, baseTime)
	}

	fresh, err := s.UpdatedSince(ctx, baseTime.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("UpdatedSince: %v", err)
	}
	if len(fresh) != 1 || fresh[0] != 2 {
		t.Errorf("UpdatedSince(2h): got %v, want [2]", fresh)
	}

	evicted, err := EvictStale(ctx, s, baseTime.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("EvictStale: %v", err)
	}
	if evicted != 1 {
		t.Errorf("evicted: got %d, want 1", evicted)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get evicted sku: want ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, 3); err != nil {
		t.Errorf("5h-old listing should survive a 24h eviction: %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	s := NewMemoryStore()
	l := listingAt(1, baseTime)
	_ = s.Upsert(context.Background(), l)

	l.Inventory[101] = 0
	got, _ := s.Get(context.Background(), 1)
	if got.Inventory[101] != 3 {
		t.Errorf("stored inventory changed through caller's map: got %d", got.Inventory[101])
	}
}

func TestEvictStaleBoundary(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	cutoff := baseTime.Add(-24 * time.Hour)

	_ = s.Upsert(ctx, listingAt(1, cutoff))
	_ = s.Upsert(ctx, listingAt(2, cutoff.Add(-time.Nanosecond)))

	n, err := EvictStale(ctx, s, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || s.Len() != 1 {
		t.Errorf("evicted %d, remaining %d; want 1 and 1", n, s.Len())
	}
	if _, err := s.Get(ctx, 1); err != nil {
		t.Error("listing exactly at the cutoff should be kept")
	}
}

func TestRedisStoreContract(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}

	prefix := "liquorbot-test:" + time.Now().Format("150405.000") + ":"
	s := NewRedisStore(client, prefix)
	defer func() {
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		s.Close()
	}()

	exerciseStore(t, s)
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := NewPostgresStore(dsn)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	defer s.Close()

	if _, err := s.db.Exec("DELETE FROM listings"); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	exerciseStore(t, s)
}

func TestCSVWriterSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "snapshot.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}

	listings := []*models.Listing{listingAt(1, baseTime), listingAt(2, baseTime)}
	if err := w.WriteSnapshot(listings); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	// a second snapshot replaces the first
	if err := w.WriteSnapshot(listings[:1]); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want header + 1", len(rows))
	}
	if rows[1][0] != "1" || rows[1][4] != "24.99" || rows[1][10] != "43.7" {
		t.Errorf("row: got %v", rows[1])
	}
}
