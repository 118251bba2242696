package cartcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/storage"
)

// KVCache keeps snapshots in any storage.KV, for deployments without Redis.
// Entries use the same key and JSON layout as RedisCache.
type KVCache struct {
	kv  storage.KV
	ttl time.Duration
	now func() time.Time
}

func NewKVCache(kv storage.KV) *KVCache {
	return &KVCache{kv: kv, ttl: 24 * time.Hour, now: time.Now}
}

func (c *KVCache) Get(ctx context.Context, userID string) (*Snapshot, error) {
	data, err := c.kv.Get(ctx, cacheKey(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("kv get failed: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
	}
	return &snap, nil
}

func (c *KVCache) Set(ctx context.Context, userID string, cart domain.Cart) error {
	data, err := json.Marshal(Snapshot{
		Cart:      cart,
		UserID:    userID,
		Timestamp: c.now().UTC(),
		Version:   snapshotVersion,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}
	if err := c.kv.Set(ctx, cacheKey(userID), data, c.ttl); err != nil {
		return fmt.Errorf("kv set failed: %w", err)
	}
	return nil
}

func (c *KVCache) Delete(ctx context.Context, userID string) error {
	if err := c.kv.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("kv delete failed: %w", err)
	}
	return nil
}
