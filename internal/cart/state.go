package cart

import (
	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// State is what the storefront renders for the cart of one device.
type State struct {
	Items   []domain.CartItem `json:"items"`
	Count   int               `json:"count"`
	Total   decimal.Decimal   `json:"total"`
	Status  Status            `json:"status"`
	Loading bool              `json:"loading"`
	Error   string            `json:"error,omitempty"`
	IsOpen  bool              `json:"isOpen"`
	// Guest is true while the items come from the device guest cart.
	Guest bool `json:"guest"`
	// Stale marks items restored from an old snapshot after a failed fetch.
	Stale bool `json:"stale,omitempty"`

	loaded bool
}

func initialState() State {
	return State{Items: []domain.CartItem{}, Total: decimal.Zero, Status: StatusIdle}
}

type action interface{ isAction() }

type (
	pending   struct{}
	fulfilled struct {
		cart  domain.Cart
		guest bool
		open  bool
	}
	rejected struct{ message string }
	restored struct {
		cart    domain.Cart
		message string
		stale   bool
	}
	// cancelled puts back what pending replaced when the caller went away
	cancelled struct {
		prev    Status
		message string
	}
	opened struct{ open bool }
	reset  struct{}
)

func (pending) isAction()   {}
func (fulfilled) isAction() {}
func (rejected) isAction()  {}
func (restored) isAction()  {}
func (cancelled) isAction() {}
func (opened) isAction()    {}
func (reset) isAction()     {}

// reduce returns the state after a. It never modifies s.Items in place.
func reduce(s State, a action) State {
	switch a := a.(type) {
	case pending:
		s.Status = StatusLoading
		s.Loading = true
		s.Error = ""
	case fulfilled:
		s.Items = displayItems(a.cart.Items)
		s.Count = a.cart.Count
		s.Total = a.cart.Total
		s.Status = StatusReady
		s.Loading = false
		s.Error = ""
		s.Guest = a.guest
		s.Stale = false
		s.loaded = true
		if a.open {
			s.IsOpen = true
		}
	case rejected:
		// keep the last known items next to the error
		s.Status = StatusError
		s.Loading = false
		s.Error = a.message
	case restored:
		s.Items = displayItems(a.cart.Items)
		s.Count = a.cart.Count
		s.Total = a.cart.Total
		s.Status = StatusError
		s.Loading = false
		s.Error = a.message
		s.Guest = false
		s.Stale = a.stale
		s.loaded = true
	case cancelled:
		s.Status = a.prev
		if a.prev == StatusLoading {
			// another request is still in flight; its result settles the status
			s.Status = StatusIdle
			if s.loaded {
				s.Status = StatusReady
			}
		}
		s.Loading = false
		s.Error = a.message
	case opened:
		s.IsOpen = a.open
	case reset:
		open := s.IsOpen
		s = initialState()
		s.IsOpen = open
	}
	return s
}

func displayItems(in []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, len(in))
	for i, item := range in {
		item.Normalize()
		out[i] = item
	}
	return out
}
