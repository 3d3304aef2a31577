package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"liquorbot/models"
)

// RedisStore keeps each listing as a JSON string under prefix+"listing:<sku>"
// and indexes last-updated times (unix millis) in the sorted set
// prefix+"listings:updated".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. The caller owns the client
// configuration; Close closes it.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

func (r *RedisStore) listingKey(sku int64) string {
	return r.prefix + "listing:" + strconv.FormatInt(sku, 10)
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "listings:updated"
}

// Upsert writes the listing and its index entry in one MULTI/EXEC.
func (r *RedisStore) Upsert(ctx context.Context, l *models.Listing) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("redis: marshal %d: %w", l.SKU, err)
	}

	member := strconv.FormatInt(l.SKU, 10)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.listingKey(l.SKU), data, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(l.LastUpdated.UnixMilli()), Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: upsert %d: %w", l.SKU, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, sku int64) (*models.Listing, error) {
	data, err := r.client.Get(ctx, r.listingKey(sku)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %d: %w", sku, err)
	}
	return decodeListing(data)
}

func (r *RedisStore) UpdatedSince(ctx context.Context, t time.Time) ([]int64, error) {
	return r.rangeSKUs(ctx, strconv.FormatInt(t.UnixMilli(), 10), "+inf")
}

func (r *RedisStore) UpdatedBefore(ctx context.Context, t time.Time) ([]int64, error) {
	return r.rangeSKUs(ctx, "-inf", "("+strconv.FormatInt(t.UnixMilli(), 10))
}

func (r *RedisStore) Delete(ctx context.Context, sku int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.listingKey(sku))
		pipe.ZRem(ctx, r.indexKey(), strconv.FormatInt(sku, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete %d: %w", sku, err)
	}
	return nil
}

// Scan loads every indexed listing in batches of 500 keys.
func (r *RedisStore) Scan(ctx context.Context) ([]*models.Listing, error) {
	members, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: scan index: %w", err)
	}

	const batchSize = 500
	listings := make([]*models.Listing, 0, len(members))
	for i := 0; i < len(members); i += batchSize {
		end := min(i+batchSize, len(members))

		keys := make([]string, 0, end-i)
		for _, m := range members[i:end] {
			keys = append(keys, r.prefix+"listing:"+m)
		}

		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan mget: %w", err)
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				// index entry outlived its value; eviction will clean it up
				continue
			}
			l, err := decodeListing([]byte(s))
			if err != nil {
				return nil, err
			}
			listings = append(listings, l)
		}
	}
	return listings, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) rangeSKUs(ctx context.Context, minScore, maxScore string) ([]int64, error) {
	members, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{Min: minScore, Max: maxScore}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: range index: %w", err)
	}

	skus := make([]int64, 0, len(members))
	for _, m := range members {
		sku, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: bad index member %q", m)
		}
		skus = append(skus, sku)
	}
	return skus, nil
}

func decodeListing(data []byte) (*models.Listing, error) {
	l := &models.Listing{}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("redis: unmarshal listing: %w", err)
	}
	if l.Inventory == nil {
		l.Inventory = make(map[int]int)
	}
	return l, nil
}
