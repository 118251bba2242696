// Package guestcart persists the anonymous cart of one device.
//
// Every operation fails soft: unreadable records read as an empty cart and
// write failures are logged, never returned. A broken guest cart must not
// block browsing.
package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/storage"
)

const DefaultTTL = 30 * 24 * time.Hour

type Store struct {
	kv       storage.KV
	deviceID string
	ttl      time.Duration
	now      func() time.Time

	// serializes read-modify-write cycles of one device
	mu sync.Mutex
}

func New(kv storage.KV, deviceID string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		kv:       kv,
		deviceID: deviceID,
		ttl:      ttl,
		now:      time.Now,
	}
}

func Key(deviceID string) string {
	return "guest_cart:" + deviceID
}

func (s *Store) Get(ctx context.Context) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) Save(ctx context.Context, cart domain.Cart) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, cart)
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, Key(s.deviceID)); err != nil {
		logger.Printf(ctx, "guest cart: failed to clear device %s: %v", s.deviceID, err)
	}
}

// AddItem increments the quantity of an existing line or appends a new one.
func (s *Store) AddItem(ctx context.Context, productID, variantKey string, quantity int, unitPrice decimal.Decimal) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.load(ctx)
	if idx := cart.Find(productID, variantKey); idx >= 0 {
		cart.Items[idx].Quantity += quantity
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:  productID,
			VariantKey: variantKey,
			Quantity:   quantity,
			UnitPrice:  unitPrice,
			AddedAt:    s.now().UTC(),
		})
	}
	return s.save(ctx, cart)
}

// UpdateItem sets the quantity of a line; a quantity of zero or less removes it.
func (s *Store) UpdateItem(ctx context.Context, productID, variantKey string, quantity int) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.load(ctx)
	idx := cart.Find(productID, variantKey)
	if idx < 0 {
		return cart
	}
	if quantity <= 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		cart.Items[idx].Quantity = quantity
	}
	return s.save(ctx, cart)
}

func (s *Store) RemoveItem(ctx context.Context, productID, variantKey string) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.load(ctx)
	kept := cart.Items[:0]
	for _, item := range cart.Items {
		if !item.Matches(productID, variantKey) {
			kept = append(kept, item)
		}
	}
	cart.Items = kept
	return s.save(ctx, cart)
}

// Replace keeps only items, clearing the record when items is empty.
func (s *Store) Replace(ctx context.Context, items []domain.CartItem) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		if err := s.kv.Delete(ctx, Key(s.deviceID)); err != nil {
			logger.Printf(ctx, "guest cart: failed to clear device %s: %v", s.deviceID, err)
		}
		return domain.EmptyCart()
	}
	cart := domain.Cart{Items: append([]domain.CartItem(nil), items...)}
	return s.save(ctx, cart)
}

func (s *Store) load(ctx context.Context) domain.Cart {
	data, err := s.kv.Get(ctx, Key(s.deviceID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Printf(ctx, "guest cart: failed to read device %s: %v", s.deviceID, err)
		}
		return domain.EmptyCart()
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		logger.Printf(ctx, "guest cart: discarding unreadable record for device %s: %v", s.deviceID, err)
		return domain.EmptyCart()
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	cart.Recalculate()
	return cart
}

func (s *Store) save(ctx context.Context, cart domain.Cart) domain.Cart {
	cart.Recalculate()

	data, err := json.Marshal(cart)
	if err != nil {
		logger.Printf(ctx, "guest cart: marshal failed for device %s: %v", s.deviceID, err)
		return cart
	}
	if err := s.kv.Set(ctx, Key(s.deviceID), data, s.ttl); err != nil {
		logger.Printf(ctx, "guest cart: failed to save device %s: %v", s.deviceID, err)
	}
	return cart
}
