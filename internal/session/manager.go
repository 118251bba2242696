// Package session keeps the per-device state of every browser talking to the
// storefront.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/cartcache"
	"github.com/fjod/go_cart/storefront/internal/dedup"
	"github.com/fjod/go_cart/storefront/internal/guestcart"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/internal/wishlist"
)

const (
	// DefaultIdleTTL is how long an unused device session stays in memory.
	DefaultIdleTTL = 30 * time.Minute

	// CleanupInterval is how often idle sessions are evicted
	CleanupInterval = time.Minute
)

// Session is everything the storefront knows about one device.
type Session struct {
	ID         string
	Tokens     *auth.Tokens
	Auth       *auth.Store
	Remote     *remote.Session
	Cart       *cart.Container
	Wishlist   *wishlist.Container
	Reconciler *auth.Reconciler
	Service    *auth.Service

	lastSeen time.Time
}

type Deps struct {
	Client     *remote.Client
	KV         storage.KV
	Alternates *auth.AlternateSessions
	Guard      *dedup.Guard
	// Snapshots is optional.
	Snapshots    cartcache.CartCache
	GuestCartTTL time.Duration
	IdleTTL      time.Duration
}

type Manager struct {
	deps Deps
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewManager(deps Deps) *Manager {
	if deps.IdleTTL <= 0 {
		deps.IdleTTL = DefaultIdleTTL
	}
	if deps.Guard == nil {
		deps.Guard = dedup.NewGuard()
	}
	m := &Manager{
		deps:        deps,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

func (m *Manager) newSession(deviceID string) *Session {
	tokens := auth.NewTokens()
	store := auth.NewStore()
	rs := m.deps.Client.Bind(tokens)

	cartContainer := cart.NewContainer(rs, guestcart.New(m.deps.KV, deviceID, m.deps.GuestCartTTL), store, cart.Config{
		DeviceID:  deviceID,
		Guard:     m.deps.Guard,
		Snapshots: m.deps.Snapshots,
	})
	wl := wishlist.NewContainer(rs, store, m.deps.Guard, deviceID)
	reconciler := auth.NewReconciler(auth.ReconcilerConfig{
		Store:      store,
		Tokens:     tokens,
		Cart:       cartContainer,
		Wishlist:   wl,
		Alternates: m.deps.Alternates,
		DeviceID:   deviceID,
	})

	return &Session{
		ID:         deviceID,
		Tokens:     tokens,
		Auth:       store,
		Remote:     rs,
		Cart:       cartContainer,
		Wishlist:   wl,
		Reconciler: reconciler,
		Service: auth.NewService(auth.ServiceConfig{
			API:        rs,
			Store:      store,
			Tokens:     tokens,
			Alternates: m.deps.Alternates,
			Reconciler: reconciler,
			DeviceID:   deviceID,
		}),
		lastSeen: m.now(),
	}
}

// Get returns the session of deviceID, creating it on first use.
func (m *Manager) Get(deviceID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[deviceID]
	if !ok {
		s = m.newSession(deviceID)
		m.sessions[deviceID] = s
	}
	s.lastSeen = m.now()
	return s
}

func (m *Manager) Lookup(deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	return s, ok
}

// ForUser returns the live sessions signed in as userID.
func (m *Manager) ForUser(userID string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.Auth.UserID() == userID {
			out = append(out, s)
		}
	}
	return out
}

// ResetUserCart drops the cart state of every session of userID, e.g. after
// the order was placed and the backend emptied the cart.
func (m *Manager) ResetUserCart(ctx context.Context, userID string) int {
	sessions := m.ForUser(userID)
	for _, s := range sessions {
		s.Cart.ClearState(ctx)
	}
	return len(sessions)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.deps.IdleTTL)
	evicted := 0
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Printf(context.Background(), "session: evicted %d idle device sessions", evicted)
	}
}

// Close stops the cleanup goroutine.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCleanup) })
	m.wg.Wait()
}
