package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"liquorbot/models"
)

var snapshotHeader = []string{
	"sku", "name", "type", "category", "price", "count", "volume",
	"alc_percent", "rating", "value", "adj_value", "sale",
}

// CSVWriter writes scored catalog snapshots to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu   sync.Mutex
	path string
}

// NewCSVWriter checks that the output directory exists (creating it if
// needed) and returns a writer for path.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	return &CSVWriter{path: path}, nil
}

// WriteSnapshot truncates the file and writes one row per listing.
func (c *CSVWriter) WriteSnapshot(listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", c.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(snapshotHeader); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, l := range listings {
		row := []string{
			strconv.FormatInt(l.SKU, 10),
			l.Name,
			l.Type,
			l.Category,
			formatFloat(l.Price),
			strconv.Itoa(l.Count),
			formatFloat(l.Volume),
			formatFloat(l.AlcPercent),
			formatFloat(l.Rating),
			formatFloat(l.Value),
			formatFloat(l.AdjValue),
			formatFloat(l.Sale),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// Close is a no-op; each snapshot opens and closes its own file.
func (c *CSVWriter) Close() error { return nil }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
