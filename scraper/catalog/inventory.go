package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"liquorbot/config"
	"liquorbot/utils"
)

// ErrTooManyRetries is returned when an inventory lookup keeps failing.
// It is scoped to one SKU.
var ErrTooManyRetries = errors.New("inventory lookup retries exhausted")

// InventoryClient fetches per-store stock counts for one SKU.
type InventoryClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	retry     *utils.RetryConfig
	logger    *utils.Logger
}

// NewInventoryClient creates an InventoryClient. Retries are fixed-delay:
// one initial call plus cfg.InventoryRetries more.
func NewInventoryClient(cfg *config.Config, logger *utils.Logger) *InventoryClient {
	return &InventoryClient{
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:   cfg.InventoryURL,
		userAgent: cfg.UserAgent,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.InventoryRetries + 1,
			BaseDelay:   cfg.RetryBackoff,
			Logger:      logger,
		},
		logger: logger,
	}
}

// FetchInventory returns location id -> available units for sku.
func (c *InventoryClient) FetchInventory(ctx context.Context, sku int64) (map[int]int, error) {
	var entries []inventoryEntry

	err := c.retry.Do(ctx, fmt.Sprintf("inventory-%d", sku), func() error {
		e, err := c.request(ctx, sku)
		if err != nil {
			return err
		}
		entries = e
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: sku %d: %v", ErrTooManyRetries, sku, err)
	}

	inventory := make(map[int]int, len(entries))
	for _, e := range entries {
		stock := int(e.Inventory.Available)
		if stock < 0 {
			stock = 0
		}
		inventory[int(e.StoreNumber)] = stock
	}
	return inventory, nil
}

func (c *InventoryClient) request(ctx context.Context, sku int64) ([]inventoryEntry, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("inventory: bad base url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("sku", strconv.FormatInt(sku, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", res.StatusCode)
	}

	var entries []inventoryEntry
	if err := json.NewDecoder(res.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return entries, nil
}
