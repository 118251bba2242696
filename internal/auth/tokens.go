package auth

import (
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Tokens is the credential store of one device session. The HTTP layer
// mirrors it into cookies whenever it changes.
type Tokens struct {
	mu          sync.RWMutex
	pair        domain.TokenPair
	changed     bool
	invalidated bool
}

func NewTokens() *Tokens {
	return &Tokens{}
}

func (t *Tokens) Tokens() domain.TokenPair {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pair
}

func (t *Tokens) SetTokens(pair domain.TokenPair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pair = pair
	t.changed = true
	t.invalidated = false
}

// Restore loads tokens read back from cookies. It only fills an empty store:
// tokens held in memory may be newer than what the browser sent.
func (t *Tokens) Restore(pair domain.TokenPair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pair.AccessToken != "" || t.pair.RefreshToken != "" {
		return
	}
	t.pair = pair
}

func (t *Tokens) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pair = domain.TokenPair{}
	t.changed = true
}

// Invalidate clears the tokens and flags the session for a forced logout.
func (t *Tokens) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pair = domain.TokenPair{}
	t.changed = true
	t.invalidated = true
}

// Invalidated reports and resets the forced logout flag.
func (t *Tokens) Invalidated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.invalidated
	t.invalidated = false
	return v
}

// TakeChanged returns the current pair if it changed since the last call.
func (t *Tokens) TakeChanged() (domain.TokenPair, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.changed
	t.changed = false
	return t.pair, changed
}
