// Package cart is the single source of truth for the cart a device sees.
//
// A Container routes every operation to the device guest cart or to the
// remote cart API depending on whether the device is signed in, and folds the
// result into its State. Operations never return errors: failures end up in
// State.Error and the previous items stay visible.
package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/storefront/internal/cartcache"
	"github.com/fjod/go_cart/storefront/internal/dedup"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/guestcart"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/state"
)

type RemoteCart interface {
	CurrentCart(ctx context.Context) (domain.Cart, error)
	AddToCart(ctx context.Context, req remote.AddItemRequest) (domain.Cart, error)
	UpdateCartItem(ctx context.Context, productID, variantKey string, quantity int) (domain.Cart, error)
	RemoveFromCart(ctx context.Context, productID, variantKey string) (domain.Cart, error)
	ClearCart(ctx context.Context) error
	MergeGuestCart(ctx context.Context, items []domain.CartItem) (remote.MergeResult, error)
	CartCount(ctx context.Context) (int, error)
}

// Authenticator tells the container which cart is authoritative.
type Authenticator interface {
	IsAuthenticated() bool
	UserID() string
}

type Config struct {
	DeviceID string
	Guard    *dedup.Guard
	// Snapshots is optional.
	Snapshots cartcache.CartCache
}

type Container struct {
	store     *state.Store[State]
	remote    RemoteCart
	guest     *guestcart.Store
	auth      Authenticator
	guard     *dedup.Guard
	snapshots cartcache.CartCache
	deviceID  string
	now       func() time.Time
}

func NewContainer(remoteCart RemoteCart, guest *guestcart.Store, auth Authenticator, cfg Config) *Container {
	guard := cfg.Guard
	if guard == nil {
		guard = dedup.NewGuard()
	}
	return &Container{
		store:     state.New(initialState()),
		remote:    remoteCart,
		guest:     guest,
		auth:      auth,
		guard:     guard,
		snapshots: cfg.Snapshots,
		deviceID:  cfg.DeviceID,
		now:       time.Now,
	}
}

func (c *Container) dispatch(a action) State {
	return c.store.Update(func(s State) State { return reduce(s, a) })
}

func (c *Container) Snapshot() State {
	return c.store.Get()
}

// Subscribe streams state changes; see state.Store.Subscribe.
func (c *Container) Subscribe() (<-chan State, func()) {
	return c.store.Subscribe()
}

// Fetch loads the authoritative cart. Concurrent fetches for the same device
// collapse into one: the skipped caller gets the current state and sees the
// result through Subscribe.
func (c *Container) Fetch(ctx context.Context) State {
	if !c.auth.IsAuthenticated() {
		return c.dispatch(fulfilled{cart: c.guest.Get(ctx), guest: true})
	}

	key := dedup.Key("fetchCart", map[string]any{"device": c.deviceID})
	_, _ = c.guard.Track(ctx, key, func() error {
		prev := c.begin()
		cart, err := c.remote.CurrentCart(ctx)
		if err != nil {
			c.fail(ctx, prev, err, "Failed to load cart", true)
			return err
		}
		c.succeed(ctx, cart, false)
		return nil
	})
	return c.store.Get()
}

// AddItem adds quantity units of a variant. A quantity below one adds one.
// Success opens the cart panel.
func (c *Container) AddItem(ctx context.Context, productID, variantKey string, unitPrice decimal.Decimal, quantity int) State {
	if quantity <= 0 {
		quantity = 1
	}
	if !c.auth.IsAuthenticated() {
		cart := c.guest.AddItem(ctx, productID, variantKey, quantity, unitPrice)
		return c.dispatch(fulfilled{cart: cart, guest: true, open: true})
	}

	prev := c.begin()
	cart, err := c.remote.AddToCart(ctx, remote.AddItemRequest{
		ProductID:  productID,
		VariantKey: variantKey,
		UnitPrice:  unitPrice,
		Quantity:   quantity,
	})
	if err != nil {
		return c.fail(ctx, prev, err, "Failed to add to cart", false)
	}
	return c.succeed(ctx, cart, true)
}

// UpdateItem sets the quantity of a line; zero or less removes it.
func (c *Container) UpdateItem(ctx context.Context, productID, variantKey string, quantity int) State {
	if !c.auth.IsAuthenticated() {
		cart := c.guest.UpdateItem(ctx, productID, variantKey, quantity)
		return c.dispatch(fulfilled{cart: cart, guest: true})
	}

	prev := c.begin()
	var (
		cart domain.Cart
		err  error
	)
	if quantity <= 0 {
		cart, err = c.remote.RemoveFromCart(ctx, productID, variantKey)
	} else {
		cart, err = c.remote.UpdateCartItem(ctx, productID, variantKey, quantity)
	}
	if err != nil {
		return c.fail(ctx, prev, err, "Failed to update cart", false)
	}
	return c.succeed(ctx, cart, false)
}

func (c *Container) RemoveItem(ctx context.Context, productID, variantKey string) State {
	if !c.auth.IsAuthenticated() {
		cart := c.guest.RemoveItem(ctx, productID, variantKey)
		return c.dispatch(fulfilled{cart: cart, guest: true})
	}

	prev := c.begin()
	cart, err := c.remote.RemoveFromCart(ctx, productID, variantKey)
	if err != nil {
		return c.fail(ctx, prev, err, "Failed to remove from cart", false)
	}
	return c.succeed(ctx, cart, false)
}

func (c *Container) Clear(ctx context.Context) State {
	if !c.auth.IsAuthenticated() {
		c.guest.Clear(ctx)
		return c.dispatch(fulfilled{cart: domain.EmptyCart(), guest: true})
	}

	prev := c.begin()
	if err := c.remote.ClearCart(ctx); err != nil {
		return c.fail(ctx, prev, err, "Failed to clear cart", false)
	}
	return c.succeed(ctx, domain.EmptyCart(), false)
}

func (c *Container) OpenCart() State {
	return c.dispatch(opened{open: true})
}

func (c *Container) CloseCart() State {
	return c.dispatch(opened{open: false})
}

// FetchCount asks the backend for the item count and reloads the cart when it
// disagrees with the items on display.
func (c *Container) FetchCount(ctx context.Context) State {
	if !c.auth.IsAuthenticated() {
		return c.Fetch(ctx)
	}

	count, err := c.remote.CartCount(ctx)
	if errors.Is(err, context.Canceled) {
		return c.store.Get()
	}
	if err != nil {
		msg := remote.Message(err, "Failed to fetch cart count")
		logger.Printf(ctx, "cart: count for device %s failed: %v", c.deviceID, err)
		return c.dispatch(rejected{message: msg})
	}
	if s := c.store.Get(); s.loaded && s.Count == count {
		return s
	}
	return c.Fetch(ctx)
}

// MergeGuest sends the guest cart to the account cart. On success only the
// lines the backend rejected stay in the guest cart. On failure the guest
// cart is left untouched and the error is returned.
func (c *Container) MergeGuest(ctx context.Context) error {
	guest := c.guest.Get(ctx)
	if len(guest.Items) == 0 {
		return nil
	}

	res, err := c.remote.MergeGuestCart(ctx, guest.Items)
	if err != nil {
		logger.Printf(ctx, "cart: merge of %d guest lines for device %s failed: %v", len(guest.Items), c.deviceID, err)
		return err
	}

	kept := make([]domain.CartItem, 0, len(res.Rejected))
	for _, rej := range res.Rejected {
		if idx := guest.Find(rej.ProductID, rej.VariantKey); idx >= 0 {
			kept = append(kept, guest.Items[idx])
		}
	}
	if len(kept) > 0 {
		logger.Printf(ctx, "cart: %d guest lines rejected by merge for device %s", len(kept), c.deviceID)
	}
	c.guest.Replace(ctx, kept)
	c.succeed(ctx, res.Cart, false)
	return nil
}

// ClearState forgets the cart of a signed-out device, including its snapshot.
func (c *Container) ClearState(ctx context.Context) {
	if c.snapshots != nil {
		if userID := c.auth.UserID(); userID != "" {
			if err := c.snapshots.Delete(ctx, userID); err != nil {
				logger.Printf(ctx, "cart: failed to delete snapshot for user %s: %v", userID, err)
			}
		}
	}
	c.dispatch(reset{})
}

func (c *Container) succeed(ctx context.Context, cart domain.Cart, open bool) State {
	s := c.dispatch(fulfilled{cart: cart, open: open})
	if c.snapshots != nil {
		if userID := c.auth.UserID(); userID != "" {
			if err := c.snapshots.Set(ctx, userID, cart); err != nil {
				logger.Printf(ctx, "cart: failed to save snapshot for user %s: %v", userID, err)
			}
		}
	}
	return s
}

// begin marks the cart as loading and returns the state it replaced.
func (c *Container) begin() State {
	var prev State
	c.store.Update(func(s State) State {
		prev = s
		return reduce(s, pending{})
	})
	return prev
}

// fail records err. With restore set and nothing loaded yet, the last
// snapshot of the user is shown next to the error. A cancelled request
// leaves the state as it was before begin.
func (c *Container) fail(ctx context.Context, prev State, err error, fallback string, restore bool) State {
	if errors.Is(err, context.Canceled) {
		logger.Printf(ctx, "cart: device %s: %s: request cancelled", c.deviceID, fallback)
		return c.dispatch(cancelled{prev: prev.Status, message: prev.Error})
	}

	msg := remote.Message(err, fallback)
	logger.Printf(ctx, "cart: device %s: %s: %v", c.deviceID, fallback, err)

	if restore && c.snapshots != nil && !c.store.Get().loaded {
		if userID := c.auth.UserID(); userID != "" {
			snap, serr := c.snapshots.Get(ctx, userID)
			switch {
			case serr == nil:
				return c.dispatch(restored{cart: snap.Cart, message: msg, stale: snap.Stale(c.now())})
			case !errors.Is(serr, cartcache.ErrCacheMiss):
				logger.Printf(ctx, "cart: failed to read snapshot for user %s: %v", userID, serr)
			}
		}
	}
	return c.dispatch(rejected{message: msg})
}
