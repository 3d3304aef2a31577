package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"liquorbot/models"
	"liquorbot/storage"
	"liquorbot/utils"
)

// ErrEnrichmentHalted is returned when a failed enrichment stopped the batch.
var ErrEnrichmentHalted = errors.New("enrichment halted")

// CatalogSource yields the full, stitched catalog.
type CatalogSource interface {
	FetchAll(ctx context.Context) ([]*models.RawCatalogRecord, error)
}

// InventorySource looks up per-location stock for one SKU.
type InventorySource interface {
	FetchInventory(ctx context.Context, sku int64) (map[int]int, error)
}

// ImageResolver picks a display image for a listing. It never fails; an
// empty string means no image.
type ImageResolver interface {
	Resolve(ctx context.Context, l *models.Listing) string
}

// RefreshConfig bounds the work done by one cycle.
type RefreshConfig struct {
	FreshnessWindow time.Duration
	StalenessWindow time.Duration
	BatchSize       int
	ItemDelay       time.Duration
	Concurrency     int
	// HaltOnFailure stops the rest of the batch after the first item whose
	// inventory lookup exhausts its retries. When false the item is counted
	// and the batch continues.
	HaltOnFailure bool
}

// DefaultRefreshConfig returns the production defaults.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		FreshnessWindow: 2 * time.Hour,
		StalenessWindow: 24 * time.Hour,
		BatchSize:       600,
		ItemDelay:       800 * time.Millisecond,
		Concurrency:     1,
		HaltOnFailure:   true,
	}
}

// Refresher runs refresh cycles: fetch, score, dedupe, enrich a bounded
// batch, then evict stale entries.
type Refresher struct {
	catalog   CatalogSource
	inventory InventorySource
	images    ImageResolver
	store     storage.ListingStore
	scorer    *Scorer
	snapshot  storage.SnapshotWriter
	cfg       RefreshConfig
	logger    *utils.Logger
	now       func() time.Time
}

// NewRefresher wires a Refresher. images may be nil, in which case the
// catalog's own image URL is kept.
func NewRefresher(
	catalog CatalogSource,
	inventory InventorySource,
	images ImageResolver,
	store storage.ListingStore,
	scorer *Scorer,
	cfg RefreshConfig,
	logger *utils.Logger,
) *Refresher {
	return &Refresher{
		catalog:   catalog,
		inventory: inventory,
		images:    images,
		store:     store,
		scorer:    scorer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithSnapshot makes each cycle write the scored catalog to w.
func (r *Refresher) WithSnapshot(w storage.SnapshotWriter) *Refresher {
	r.snapshot = w
	return r
}

// RunCycle runs one cycle. Eviction runs whatever happened before it, so
// the staleness bound holds even when the catalog is unreachable.
func (r *Refresher) RunCycle(ctx context.Context) *models.CycleReport {
	report := &models.CycleReport{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		Skipped:   make(map[models.SkipReason]int),
	}
	start := time.Now()

	r.logger.Info("[refresh] Cycle %s started", report.RunID)
	err := r.refresh(ctx, report)
	if err != nil {
		r.logger.Error("[refresh] Cycle %s: %v", report.RunID, err)
	}

	evicted, evictErr := storage.EvictStale(context.WithoutCancel(ctx), r.store, r.now().Add(-r.cfg.StalenessWindow))
	report.Evicted = evicted
	if evictErr != nil {
		r.logger.Error("[refresh] Cycle %s: %v", report.RunID, evictErr)
		err = errors.Join(err, evictErr)
	}

	report.Err = err
	report.Success = err == nil
	report.Duration = time.Since(start)

	r.logger.Info("[refresh] Cycle %s done in %v: fetched=%d scored=%d fresh=%d enriched=%d/%d failed=%d evicted=%d success=%v",
		report.RunID, report.Duration.Round(time.Millisecond), report.Fetched, report.Scored,
		report.Fresh, report.Enriched, report.Attempted, report.FailedItems, report.Evicted, report.Success)
	return report
}

func (r *Refresher) refresh(ctx context.Context, report *models.CycleReport) error {
	records, err := r.catalog.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("fetch catalog: %w", err)
	}
	report.Fetched = len(records)

	listings, skipped := r.scorer.NormalizeAll(records)
	report.Skipped = skipped
	listings = DedupeBySKU(listings)
	report.Scored = len(listings)

	for reason, n := range skipped {
		r.logger.Debug("[refresh] skipped %d records: %s", n, reason)
	}

	if r.snapshot != nil {
		if err := r.snapshot.WriteSnapshot(listings); err != nil {
			r.logger.Warn("[refresh] snapshot failed: %v", err)
		}
	}

	// The freshness decision is made once, before the batch starts.
	freshSKUs, err := r.store.UpdatedSince(ctx, r.now().Add(-r.cfg.FreshnessWindow))
	if err != nil {
		return fmt.Errorf("load fresh skus: %w", err)
	}
	fresh := utils.NewSet(freshSKUs...)

	candidates := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if fresh.Contains(l.SKU) {
			report.Fresh++
			continue
		}
		candidates = append(candidates, l)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AdjValue > candidates[j].AdjValue
	})
	if len(candidates) > r.cfg.BatchSize {
		candidates = candidates[:r.cfg.BatchSize]
	}

	r.logger.Info("[refresh] %d scored, %d fresh, enriching %d", report.Scored, report.Fresh, len(candidates))
	return r.enrichBatch(ctx, candidates, report)
}

// enrichBatch enriches items one at a time with ItemDelay between the end of
// one item and the start of the next. With Concurrency > 1 the delay instead
// spaces item starts across all workers.
func (r *Refresher) enrichBatch(ctx context.Context, batch []*models.Listing, report *models.CycleReport) error {
	var (
		halted   atomic.Bool
		mu       sync.Mutex
		haltErr  error
		firstErr error
	)

	stopped := func() bool { return halted.Load() || ctx.Err() != nil }

	process := func(l *models.Listing) {
		if stopped() {
			return
		}

		mu.Lock()
		report.Attempted++
		mu.Unlock()

		err := r.enrichOne(ctx, l)

		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			report.Enriched++
		case ctx.Err() != nil:
			// cancelled mid-item; nothing was written
			report.Attempted--
		default:
			report.FailedItems++
			if firstErr == nil {
				firstErr = err
			}
			if r.cfg.HaltOnFailure && !halted.Swap(true) {
				haltErr = err
				r.logger.Error("[refresh] sku %d: %v; halting batch", l.SKU, err)
			} else {
				r.logger.Warn("[refresh] sku %d: %v", l.SKU, err)
			}
		}
	}

	if r.cfg.Concurrency <= 1 {
		for i, l := range batch {
			if stopped() {
				break
			}
			if i > 0 {
				if err := utils.Sleep(ctx, r.cfg.ItemDelay); err != nil {
					break
				}
			}
			process(l)
		}
	} else {
		pool := utils.NewWorkerPool(r.cfg.Concurrency, r.cfg.ItemDelay)
		for _, l := range batch {
			if stopped() {
				break
			}
			pool.Submit(func() { process(l) })
		}
		pool.Wait()
	}

	if haltErr != nil {
		return fmt.Errorf("%w after %d of %d items: %w", ErrEnrichmentHalted, report.Enriched, len(batch), haltErr)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("aborted after %d of %d items: %w", report.Enriched, len(batch), err)
	}
	if report.Attempted > 0 && report.Enriched == 0 {
		return fmt.Errorf("all %d enrichments failed: %w", report.Attempted, firstErr)
	}
	return nil
}

// enrichOne resolves the image and inventory of one listing and upserts it.
// The cached copy is only written once both lookups are done.
func (r *Refresher) enrichOne(ctx context.Context, l *models.Listing) error {
	enriched := l.Clone()

	if r.images != nil {
		enriched.Image = r.images.Resolve(ctx, enriched)
	}

	inventory, err := r.inventory.FetchInventory(ctx, enriched.SKU)
	if err != nil {
		return err
	}
	enriched.Inventory = inventory
	enriched.LastUpdated = r.now()

	if err := r.store.Upsert(ctx, enriched); err != nil {
		return fmt.Errorf("upsert %d: %w", enriched.SKU, err)
	}
	return nil
}
