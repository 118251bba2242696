// Package dedup collapses concurrent identical network calls.
//
// A Guard is a registry of in-flight call keys. A caller whose key is already
// registered is skipped: the operation is not invoked and the caller relies on
// the state update published by the call that is already running. There is no
// queueing and no result sharing.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/logger"
)

type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// Active reports whether a call registered under key is in flight.
func (g *Guard) Active(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[key]
	return ok
}

// Track runs op unless a call with the same key is already in flight.
// ran is false when op was skipped. The key is released when op returns or panics.
// ctx only labels the skip log line.
func (g *Guard) Track(ctx context.Context, key string, op func() error) (ran bool, err error) {
	if !g.start(key) {
		logger.Printf(ctx, "dedup: %s already in flight, skipped", key)
		return false, nil
	}
	defer g.end(key)

	return true, op()
}

func (g *Guard) start(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[key]; ok {
		return false
	}
	g.active[key] = struct{}{}
	return true
}

func (g *Guard) end(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

// Key builds a deterministic call key from an operation name and its parameters.
// Parameters are sorted by name, so logically identical calls always collide:
//
//	Key("fetchProducts", map[string]any{"page": 1, "limit": 20}) == "fetchProducts_limit=20&page=1"
func Key(name string, params map[string]any) string {
	if len(params) == 0 {
		return name
	}

	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return name + "_" + strings.Join(parts, "&")
}
