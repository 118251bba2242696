// Package cartcache keeps the last remote cart seen for each user so a device
// can show something while the cart API is unreachable.
package cartcache

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// StaleAfter is the age after which a snapshot is flagged as stale.
const StaleAfter = 10 * time.Minute

const snapshotVersion = "1.0"

var ErrCacheMiss = errors.New("cache miss")

type Snapshot struct {
	Cart      domain.Cart `json:"cartData"`
	UserID    string      `json:"userId"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
}

func (s Snapshot) Stale(now time.Time) bool {
	return now.Sub(s.Timestamp) > StaleAfter
}

type CartCache interface {
	Get(ctx context.Context, userID string) (*Snapshot, error)
	Set(ctx context.Context, userID string, cart domain.Cart) error
	Delete(ctx context.Context, userID string) error
}
