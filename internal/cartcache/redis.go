package cartcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 24 * time.Hour,
		now:     time.Now,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
	now     func() time.Time
	group   singleflight.Group
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*Snapshot, error) {
	key := cacheKey(userID)

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		if err != nil {
			return nil, fmt.Errorf("redis get failed: %w", err)
		}

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot failed: %w", err)
		}
		return &snap, nil
	})
	if err != nil {
		return nil, err
	}

	// callers share the decoded value, hand each one its own copy
	snap := *v.(*Snapshot)
	snap.Cart = snap.Cart.Clone()
	return &snap, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart domain.Cart) error {
	key := cacheKey(userID)
	snap := Snapshot{
		Cart:      cart,
		UserID:    userID,
		Timestamp: r.now().UTC(),
		Version:   snapshotVersion,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
