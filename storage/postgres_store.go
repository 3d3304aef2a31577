package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"liquorbot/models"
)

// PostgresStore persists the listing cache to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			sku          BIGINT        PRIMARY KEY,
			name         TEXT          NOT NULL,
			type         TEXT          NOT NULL DEFAULT '',
			category     TEXT          NOT NULL DEFAULT '',
			price        NUMERIC(10,2) NOT NULL,
			count        INTEGER       NOT NULL DEFAULT 1,
			volume       NUMERIC(8,3)  NOT NULL,
			alc_percent  NUMERIC(5,1)  NOT NULL DEFAULT 0,
			rating       NUMERIC(4,2)  NOT NULL DEFAULT 2.5,
			value        NUMERIC(10,1) NOT NULL DEFAULT 0,
			adj_value    NUMERIC(10,1) NOT NULL DEFAULT 0,
			sale         NUMERIC       NOT NULL DEFAULT 0,
			image        TEXT,
			inventory    JSONB         NOT NULL DEFAULT '{}',
			last_updated TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_last_updated ON listings(last_updated);
		CREATE INDEX IF NOT EXISTS idx_listings_adj_value    ON listings(adj_value DESC);
		CREATE INDEX IF NOT EXISTS idx_listings_price        ON listings(price);
	`)
	return err
}

const upsertListing = `
	INSERT INTO listings (sku, name, type, category, price, count, volume, alc_percent,
		rating, value, adj_value, sale, image, inventory, last_updated)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	ON CONFLICT (sku) DO UPDATE SET
		name = EXCLUDED.name,
		type = EXCLUDED.type,
		category = EXCLUDED.category,
		price = EXCLUDED.price,
		count = EXCLUDED.count,
		volume = EXCLUDED.volume,
		alc_percent = EXCLUDED.alc_percent,
		rating = EXCLUDED.rating,
		value = EXCLUDED.value,
		adj_value = EXCLUDED.adj_value,
		sale = EXCLUDED.sale,
		image = EXCLUDED.image,
		inventory = EXCLUDED.inventory,
		last_updated = EXCLUDED.last_updated
`

const selectListing = `
	SELECT sku, name, type, category, price, count, volume, alc_percent,
		rating, value, adj_value, sale, image, inventory, last_updated
	FROM listings
`

// Upsert writes one listing in a single statement.
func (ps *PostgresStore) Upsert(ctx context.Context, l *models.Listing) error {
	inv, err := encodeInventory(l.Inventory)
	if err != nil {
		return fmt.Errorf("postgres: upsert %d: %w", l.SKU, err)
	}

	var image sql.NullString
	if l.Image != "" {
		image = sql.NullString{String: l.Image, Valid: true}
	}

	_, err = ps.db.ExecContext(ctx, upsertListing,
		l.SKU, l.Name, l.Type, l.Category, l.Price, l.Count, l.Volume, l.AlcPercent,
		l.Rating, l.Value, l.AdjValue, l.Sale, image, inv, l.LastUpdated.UTC())
	if err != nil {
		return fmt.Errorf("postgres: upsert %d: %w", l.SKU, err)
	}
	return nil
}

func (ps *PostgresStore) Get(ctx context.Context, sku int64) (*models.Listing, error) {
	row := ps.db.QueryRowContext(ctx, selectListing+" WHERE sku = $1", sku)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %d: %w", sku, err)
	}
	return l, nil
}

func (ps *PostgresStore) UpdatedSince(ctx context.Context, t time.Time) ([]int64, error) {
	return ps.skus(ctx, "SELECT sku FROM listings WHERE last_updated >= $1 ORDER BY sku", t.UTC())
}

func (ps *PostgresStore) UpdatedBefore(ctx context.Context, t time.Time) ([]int64, error) {
	return ps.skus(ctx, "SELECT sku FROM listings WHERE last_updated < $1 ORDER BY sku", t.UTC())
}

func (ps *PostgresStore) Delete(ctx context.Context, sku int64) error {
	if _, err := ps.db.ExecContext(ctx, "DELETE FROM listings WHERE sku = $1", sku); err != nil {
		return fmt.Errorf("postgres: delete %d: %w", sku, err)
	}
	return nil
}

// Scan retrieves all cached listings ordered by SKU.
func (ps *PostgresStore) Scan(ctx context.Context) ([]*models.Listing, error) {
	rows, err := ps.db.QueryContext(ctx, selectListing+" ORDER BY sku")
	if err != nil {
		return nil, fmt.Errorf("postgres: scan: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func (ps *PostgresStore) skus(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := ps.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: query skus: %w", err)
	}
	defer rows.Close()

	var skus []int64
	for rows.Next() {
		var sku int64
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	return skus, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(r rowScanner) (*models.Listing, error) {
	l := &models.Listing{}
	var image sql.NullString
	var inv []byte
	if err := r.Scan(
		&l.SKU, &l.Name, &l.Type, &l.Category, &l.Price, &l.Count, &l.Volume, &l.AlcPercent,
		&l.Rating, &l.Value, &l.AdjValue, &l.Sale, &image, &inv, &l.LastUpdated,
	); err != nil {
		return nil, err
	}
	l.Image = image.String

	inventory, err := decodeInventory(inv)
	if err != nil {
		return nil, err
	}
	l.Inventory = inventory
	return l, nil
}

func encodeInventory(inv map[int]int) (string, error) {
	if inv == nil {
		inv = map[int]int{}
	}
	b, err := json.Marshal(inv)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeInventory(b []byte) (map[int]int, error) {
	inv := make(map[int]int)
	if len(b) == 0 {
		return inv, nil
	}
	if err := json.Unmarshal(b, &inv); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	return inv, nil
}
