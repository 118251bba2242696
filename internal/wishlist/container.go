// Package wishlist keeps the wishlist of a signed-in device.
package wishlist

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/dedup"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/state"
)

type API interface {
	Wishlist(ctx context.Context) ([]domain.ProductRef, error)
	ToggleWishlist(ctx context.Context, productID string) (remote.ToggleResult, error)
}

type Authenticator interface {
	IsAuthenticated() bool
}

type Entry struct {
	Product domain.ProductRef `json:"product"`
	// Optimistic entries were added locally and not confirmed by a fetch yet.
	Optimistic bool `json:"optimistic,omitempty"`
}

type State struct {
	Items   []Entry `json:"items"`
	Loading bool    `json:"loading"`
	Error   string  `json:"error,omitempty"`
}

func (s State) Contains(productID string) bool {
	return indexOf(s.Items, productID) >= 0
}

func indexOf(items []Entry, productID string) int {
	for i, e := range items {
		if e.Product.ID == productID {
			return i
		}
	}
	return -1
}

type Container struct {
	api      API
	auth     Authenticator
	guard    *dedup.Guard
	deviceID string
	state    *state.Store[State]
}

func NewContainer(api API, auth Authenticator, guard *dedup.Guard, deviceID string) *Container {
	if guard == nil {
		guard = dedup.NewGuard()
	}
	return &Container{
		api:      api,
		auth:     auth,
		guard:    guard,
		deviceID: deviceID,
		state:    state.New(State{Items: []Entry{}}),
	}
}

func (c *Container) Snapshot() State {
	return c.state.Get()
}

// Fetch loads the wishlist. Guests have none.
func (c *Container) Fetch(ctx context.Context) State {
	if !c.auth.IsAuthenticated() {
		return c.state.Get()
	}

	key := dedup.Key("fetchWishlist", map[string]any{"device": c.deviceID})
	_, _ = c.guard.Track(ctx, key, func() error {
		var prevErr string
		c.state.Update(func(s State) State {
			prevErr = s.Error
			s.Loading = true
			s.Error = ""
			return s
		})

		products, err := c.api.Wishlist(ctx)
		if errors.Is(err, context.Canceled) {
			c.state.Update(func(s State) State {
				s.Loading = false
				s.Error = prevErr
				return s
			})
			return err
		}
		if err != nil {
			msg := remote.Message(err, "Failed to load wishlist")
			logger.Printf(ctx, "wishlist: device %s: fetch failed: %v", c.deviceID, err)
			c.state.Update(func(s State) State {
				s.Loading = false
				s.Error = msg
				return s
			})
			return err
		}

		items := make([]Entry, len(products))
		for i, p := range products {
			items[i] = Entry{Product: p}
		}
		c.state.Update(func(State) State { return State{Items: items} })
		return nil
	})
	return c.state.Get()
}

// Toggle flips productID in the wishlist right away and rolls back if the
// backend refuses.
func (c *Container) Toggle(ctx context.Context, productID string) State {
	var (
		before  []Entry
		prevErr string
	)
	c.state.Update(func(s State) State {
		before = s.Items
		prevErr = s.Error
		s.Items = toggled(s.Items, productID)
		s.Error = ""
		return s
	})

	res, err := c.api.ToggleWishlist(ctx, productID)
	if errors.Is(err, context.Canceled) {
		return c.state.Update(func(s State) State {
			s.Items = before
			s.Error = prevErr
			return s
		})
	}
	if err != nil {
		msg := remote.Message(err, "Failed to toggle wishlist")
		logger.Printf(ctx, "wishlist: device %s: toggle %s failed: %v", c.deviceID, productID, err)
		return c.state.Update(func(s State) State {
			s.Items = before
			s.Error = msg
			return s
		})
	}

	// the backend has the final say
	return c.state.Update(func(s State) State {
		if s.Contains(productID) != res.InWishlist {
			s.Items = toggled(s.Items, productID)
		}
		return s
	})
}

func (c *Container) ClearState(ctx context.Context) {
	c.state.Update(func(State) State { return State{Items: []Entry{}} })
}

func toggled(items []Entry, productID string) []Entry {
	out := make([]Entry, 0, len(items)+1)
	if idx := indexOf(items, productID); idx >= 0 {
		out = append(out, items[:idx]...)
		return append(out, items[idx+1:]...)
	}
	out = append(out, items...)
	return append(out, Entry{Product: domain.ProductRef{ID: productID}, Optimistic: true})
}
