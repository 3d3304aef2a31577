package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"liquorbot/utils"
)

type fakeHit struct {
	Source map[string]any `json:"_source"`
}

func record(sku int, name string) fakeHit {
	return fakeHit{Source: map[string]any{
		"sku":               strconv.Itoa(sku),
		"name":              name,
		"currentPrice":      "19.99",
		"regularPrice":      21.99,
		"unitSize":          1,
		"volume":            "0.75",
		"alcoholPercentage": 40,
		"productCategory":   "Spirits",
		"productType":       "Gin",
		"consumerRating":    nil,
		"availableUnits":    12,
		"image":             nil,
	}}
}

// paddedCatalog serves total items in pages of pageSize. The final page is
// padded at the front with already-served items, like the real source.
func paddedCatalog(t *testing.T, total, pageSize int) http.HandlerFunc {
	t.Helper()
	totalPages := (total + pageSize - 1) / pageSize

	return func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		if size != pageSize {
			t.Errorf("size param: got %d, want %d", size, pageSize)
		}

		var hits []fakeHit
		if page < totalPages || total%pageSize == 0 {
			for i := (page-1)*pageSize + 1; i <= page*pageSize && i <= total; i++ {
				hits = append(hits, record(i, "item"))
			}
		} else {
			fresh := total % pageSize
			for i := 1; i <= pageSize-fresh; i++ {
				hits = append(hits, record(i, "padding"))
			}
			for i := total - fresh + 1; i <= total; i++ {
				hits = append(hits, record(i, "item"))
			}
		}

		body := map[string]any{"hits": map[string]any{
			"total":       total,
			"total_pages": totalPages,
			"hits":        hits,
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

func newTestFetcher(url string, pageSize int, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		baseURL:     url,
		pageSize:    pageSize,
		concurrency: 2,
		userAgent:   "test",
		logger:      utils.Nop(),
	}
}

func TestFetchAllTrimsPaddedFinalPage(t *testing.T) {
	srv := httptest.NewServer(paddedCatalog(t, 12001, 6000))
	defer srv.Close()

	records, err := newTestFetcher(srv.URL, 6000, 5*time.Second).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if len(records) != 12001 {
		t.Fatalf("records: got %d, want 12001", len(records))
	}
	for _, r := range records {
		if r.Name == "padding" {
			t.Fatalf("sku %d came from the padded part of the final page", r.SKU)
		}
	}
	if last := records[len(records)-1]; last.SKU != 12001 {
		t.Errorf("last record sku: got %d, want 12001", last.SKU)
	}
}

func TestFetchAllSmallPages(t *testing.T) {
	tests := []struct {
		total, pageSize int
	}{
		{9, 4},
		{8, 4},
		{3, 4},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(paddedCatalog(t, tt.total, tt.pageSize))
		records, err := newTestFetcher(srv.URL, tt.pageSize, 5*time.Second).FetchAll(context.Background())
		srv.Close()

		if err != nil {
			t.Errorf("total=%d size=%d: %v", tt.total, tt.pageSize, err)
			continue
		}
		if len(records) != tt.total {
			t.Errorf("total=%d size=%d: got %d records", tt.total, tt.pageSize, len(records))
		}
	}
}

func TestFetchAllDecodesRecord(t *testing.T) {
	srv := httptest.NewServer(paddedCatalog(t, 1, 10))
	defer srv.Close()

	records, err := newTestFetcher(srv.URL, 10, 5*time.Second).FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	r := records[0]
	if r.SKU != 1 || r.Name != "item" {
		t.Errorf("identity: got %d/%q", r.SKU, r.Name)
	}
	if r.CurrentPrice == nil || *r.CurrentPrice != 19.99 {
		t.Errorf("CurrentPrice: got %v, want 19.99", r.CurrentPrice)
	}
	if r.RegularPrice == nil || *r.RegularPrice != 21.99 {
		t.Errorf("RegularPrice: got %v, want 21.99", r.RegularPrice)
	}
	if r.ConsumerRating != nil {
		t.Errorf("ConsumerRating: got %v, want nil", *r.ConsumerRating)
	}
	if r.Volume != 0.75 || r.AlcoholPercent != 40 || r.AvailableUnits != 12 {
		t.Errorf("measurements: got vol=%v alc=%v units=%d", r.Volume, r.AlcoholPercent, r.AvailableUnits)
	}
	if r.Category != "Spirits" || r.Type != "Gin" || r.Image != "" {
		t.Errorf("strings: got %q/%q/%q", r.Category, r.Type, r.Image)
	}
}

func TestFetchAllTimeoutDiscardsPartialResults(t *testing.T) {
	inner := paddedCatalog(t, 10, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			time.Sleep(300 * time.Millisecond)
		}
		inner(w, r)
	}))
	defer srv.Close()

	records, err := newTestFetcher(srv.URL, 4, 100*time.Millisecond).FetchAll(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("want ErrSourceUnavailable, got %v", err)
	}
	if records != nil {
		t.Errorf("partial records returned: %d", len(records))
	}
}

func TestFetchAllBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL, 4, time.Second).FetchAll(context.Background())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("want ErrSourceUnavailable, got %v", err)
	}
}

func TestTrimFinalPage(t *testing.T) {
	page := []hit{{}, {}, {}, {}, {}}
	for i := range page {
		page[i].Source.SKU = number(i + 1)
	}

	got := trimFinalPage(page, 12002, 6000)
	if len(got) != 2 || got[0].Source.SKU != 4 || got[1].Source.SKU != 5 {
		t.Errorf("trim 2 of 5: got %d entries", len(got))
	}
	if got := trimFinalPage(page, 12000, 6000); len(got) != 5 {
		t.Errorf("zero remainder should keep page, got %d", len(got))
	}
	if got := trimFinalPage(page[:1], 12004, 6000); len(got) != 1 {
		t.Errorf("short page should be kept whole, got %d", len(got))
	}
}
