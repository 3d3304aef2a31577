// Package catalog talks to the remote product catalog and inventory endpoints.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"liquorbot/config"
	"liquorbot/models"
	"liquorbot/utils"
)

// ErrSourceUnavailable aborts a whole fetch. No partial result is returned.
var ErrSourceUnavailable = errors.New("catalog source unavailable")

// Fetcher retrieves every catalog page and stitches them into one record set.
type Fetcher struct {
	client      *http.Client
	baseURL     string
	pageSize    int
	concurrency int
	userAgent   string
	logger      *utils.Logger
}

// NewFetcher creates a Fetcher from application config.
func NewFetcher(cfg *config.Config, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		client:      &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:     cfg.CatalogURL,
		pageSize:    cfg.PageSize,
		concurrency: cfg.MaxConcurrency,
		userAgent:   cfg.UserAgent,
		logger:      logger,
	}
}

// FetchAll requests page 1 to learn the page count, then the remaining pages
// in parallel. The final page is padded by the source with items already
// served, so only its last total%pageSize entries are kept.
func (f *Fetcher) FetchAll(ctx context.Context) ([]*models.RawCatalogRecord, error) {
	start := time.Now()

	first, err := f.fetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}

	total := first.Hits.Total
	totalPages := first.Hits.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}
	f.logger.Info("[catalog] %d items across %d pages (page size %d)", total, totalPages, f.pageSize)

	pages := make([][]hit, totalPages)
	pages[0] = first.Hits.Hits

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.concurrency, 1))
	for p := 2; p <= totalPages; p++ {
		g.Go(func() error {
			resp, err := f.fetchPage(gctx, p)
			if err != nil {
				return err
			}
			pages[p-1] = resp.Hits.Hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pages[totalPages-1] = trimFinalPage(pages[totalPages-1], total, f.pageSize)

	records := stitch(pages)
	f.logger.Info("[catalog] Fetched %d unique records in %v", len(records), time.Since(start).Round(time.Millisecond))
	return records, nil
}

// trimFinalPage keeps the last total%pageSize entries of the final page.
// A zero remainder means the final page is entirely new.
func trimFinalPage(page []hit, total, pageSize int) []hit {
	if pageSize <= 0 {
		return page
	}
	newItems := total % pageSize
	if newItems == 0 || newItems >= len(page) {
		return page
	}
	return page[len(page)-newItems:]
}

// stitch flattens pages in order and collapses repeated SKUs. The last
// occurrence wins but keeps the position of the first.
func stitch(pages [][]hit) []*models.RawCatalogRecord {
	index := make(map[int64]int)
	var records []*models.RawCatalogRecord

	for _, page := range pages {
		for _, h := range page {
			rec := h.Source.toRaw()
			if i, dup := index[rec.SKU]; dup {
				records[i] = rec
				continue
			}
			index[rec.SKU] = len(records)
			records = append(records, rec)
		}
	}
	return records
}

func (f *Fetcher) fetchPage(ctx context.Context, page int) (*browseResponse, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad base url %q: %w", f.baseURL, err)
	}
	q := u.Query()
	q.Set("size", strconv.Itoa(f.pageSize))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrSourceUnavailable, page, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: page %d: status %d", ErrSourceUnavailable, page, res.StatusCode)
	}

	var body browseResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: page %d: decode: %v", ErrSourceUnavailable, page, err)
	}

	f.logger.Debug("[catalog] Page %d: %d hits", page, len(body.Hits.Hits))
	return &body, nil
}
