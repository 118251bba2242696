package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/cartcache"
	"github.com/fjod/go_cart/storefront/internal/dedup"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/guestcart"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/storage"
)

// mockRemote keeps an account cart in memory.
type mockRemote struct {
	mu         sync.RWMutex
	items      []domain.CartItem
	err        error
	count      *int
	fetchCalls int
	mergeCalls [][]domain.CartItem
	rejected   []domain.CartItem
	fetchGate  chan struct{}
	// hang makes calls wait for their context to end
	hang       bool
}

func (m *mockRemote) wait(ctx context.Context) error {
	m.mu.RLock()
	hang := m.hang
	m.mu.RUnlock()
	if !hang {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockRemote) cart() domain.Cart {
	c := domain.Cart{Items: append([]domain.CartItem(nil), m.items...)}
	c.Recalculate()
	return c
}

func (m *mockRemote) CurrentCart(ctx context.Context) (domain.Cart, error) {
	m.mu.Lock()
	m.fetchCalls++
	gate := m.fetchGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err := m.wait(ctx); err != nil {
		return domain.Cart{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return domain.Cart{}, m.err
	}
	return m.cart(), nil
}

func (m *mockRemote) AddToCart(ctx context.Context, req remote.AddItemRequest) (domain.Cart, error) {
	if err := m.wait(ctx); err != nil {
		return domain.Cart{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Cart{}, m.err
	}
	c := m.cart()
	if idx := c.Find(req.ProductID, req.VariantKey); idx >= 0 {
		m.items[idx].Quantity += req.Quantity
	} else {
		m.items = append(m.items, domain.CartItem{ProductID: req.ProductID, VariantKey: req.VariantKey, Quantity: req.Quantity, UnitPrice: req.UnitPrice})
	}
	return m.cart(), nil
}

func (m *mockRemote) UpdateCartItem(ctx context.Context, productID, variantKey string, quantity int) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Cart{}, m.err
	}
	if quantity <= 0 {
		return domain.Cart{}, &remote.APIError{Status: 400, Message: "Quantity must be positive"}
	}
	for i := range m.items {
		if m.items[i].Matches(productID, variantKey) {
			m.items[i].Quantity = quantity
		}
	}
	return m.cart(), nil
}

func (m *mockRemote) RemoveFromCart(ctx context.Context, productID, variantKey string) (domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Cart{}, m.err
	}
	kept := m.items[:0]
	for _, item := range m.items {
		if !item.Matches(productID, variantKey) {
			kept = append(kept, item)
		}
	}
	m.items = kept
	return m.cart(), nil
}

func (m *mockRemote) ClearCart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items = nil
	return nil
}

func (m *mockRemote) MergeGuestCart(ctx context.Context, items []domain.CartItem) (remote.MergeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeCalls = append(m.mergeCalls, items)
	if m.err != nil {
		return remote.MergeResult{}, m.err
	}
	for _, item := range items {
		rejected := false
		for _, r := range m.rejected {
			if r.Matches(item.ProductID, item.VariantKey) {
				rejected = true
			}
		}
		if !rejected {
			m.items = append(m.items, item)
		}
	}
	return remote.MergeResult{Cart: m.cart(), Rejected: m.rejected}, nil
}

func (m *mockRemote) CartCount(ctx context.Context) (int, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.count != nil {
		return *m.count, nil
	}
	return m.cart().Count, nil
}

func (m *mockRemote) setHang(hang bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hang = hang
}

func (m *mockRemote) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type mockAuth struct {
	mu     sync.RWMutex
	authed bool
	userID string
}

func (a *mockAuth) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authed
}

func (a *mockAuth) UserID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.userID
}

// memSnapshots is an in-memory cartcache.CartCache.
type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]cartcache.Snapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{snaps: map[string]cartcache.Snapshot{}}
}

func (m *memSnapshots) Get(ctx context.Context, userID string) (*cartcache.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[userID]
	if !ok {
		return nil, cartcache.ErrCacheMiss
	}
	return &s, nil
}

func (m *memSnapshots) Set(ctx context.Context, userID string, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[userID] = cartcache.Snapshot{Cart: cart, UserID: userID, Timestamp: time.Now()}
	return nil
}

func (m *memSnapshots) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, userID)
	return nil
}

type fixture struct {
	container *Container
	remote    *mockRemote
	auth      *mockAuth
	guest     *guestcart.Store
	snaps     *memSnapshots
}

func newFixture(t *testing.T, authed bool) fixture {
	t.Helper()
	kv := storage.NewMemoryKV()
	t.Cleanup(kv.Close)

	f := fixture{
		remote: &mockRemote{},
		auth:   &mockAuth{authed: authed, userID: "user-1"},
		guest:  guestcart.New(kv, "device-1", 0),
		snaps:  newMemSnapshots(),
	}
	if !authed {
		f.auth.userID = ""
	}
	f.container = NewContainer(f.remote, f.guest, f.auth, Config{
		DeviceID:  "device-1",
		Guard:     dedup.NewGuard(),
		Snapshots: f.snaps,
	})
	return f
}

func assertConsistent(t *testing.T, s State) {
	t.Helper()
	count := 0
	total := decimal.Zero
	for _, item := range s.Items {
		count += item.Quantity
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	assert.Equal(t, count, s.Count)
	assert.True(t, total.Equal(s.Total), "total %s != %s", s.Total, total)
}

func TestGuest_AddItemOpensCart(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	s := f.container.AddItem(ctx, "P1", "red-M", decimal.NewFromInt(500), 2)

	assert.True(t, s.IsOpen)
	assert.True(t, s.Guest)
	assert.Equal(t, StatusReady, s.Status)
	require.Len(t, s.Items, 1)
	assert.Equal(t, domain.UnknownProductTitle, s.Items[0].Product.Title)
	assert.Equal(t, 2, s.Count)
	assert.True(t, decimal.NewFromInt(1000).Equal(s.Total))
	assert.Equal(t, 0, f.remote.fetchCalls)
}

func TestGuest_DefaultQuantityIsOne(t *testing.T) {
	f := newFixture(t, false)

	s := f.container.AddItem(context.Background(), "P1", "red-M", decimal.NewFromInt(500), 0)

	assert.Equal(t, 1, s.Count)
}

func TestGuest_FetchReadsGuestStore(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.guest.AddItem(ctx, "P1", "red-M", 3, decimal.NewFromInt(10))

	s := f.container.Fetch(ctx)

	assert.Equal(t, StatusReady, s.Status)
	assert.Equal(t, 3, s.Count)
	assert.True(t, s.Guest)
}

func TestGuest_UpdateRemoveClear(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.container.AddItem(ctx, "P1", "red-M", decimal.NewFromInt(500), 1)
	f.container.AddItem(ctx, "P2", "blue-L", decimal.NewFromInt(300), 2)

	s := f.container.UpdateItem(ctx, "P1", "red-M", 4)
	assert.Equal(t, 6, s.Count)
	assertConsistent(t, s)

	s = f.container.RemoveItem(ctx, "P2", "blue-L")
	assert.Equal(t, 4, s.Count)
	assertConsistent(t, s)

	s = f.container.Clear(ctx)
	assert.Empty(t, s.Items)
	assert.Equal(t, 0, s.Count)
	assert.Empty(t, f.guest.Get(ctx).Items)
}

func TestRemote_UpdateToZeroRemovesItem(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.items = []domain.CartItem{
		{ProductID: "P1", VariantKey: "red-M", Quantity: 1, UnitPrice: decimal.NewFromInt(500)},
		{ProductID: "P2", VariantKey: "blue-L", Quantity: 3, UnitPrice: decimal.NewFromInt(300)},
	}

	before := f.container.Fetch(ctx)
	require.Equal(t, 4, before.Count)

	s := f.container.UpdateItem(ctx, "P2", "blue-L", 0)

	assert.Equal(t, StatusReady, s.Status)
	assert.Empty(t, s.Error)
	assert.Equal(t, before.Count-3, s.Count)
	assert.Equal(t, -1, domain.Cart{Items: s.Items}.Find("P2", "blue-L"))
	assertConsistent(t, s)
}

func TestRemote_FailureKeepsItems(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.items = []domain.CartItem{{ProductID: "P1", VariantKey: "red-M", Quantity: 2, UnitPrice: decimal.NewFromInt(500)}}
	f.container.Fetch(ctx)

	f.remote.setErr(&remote.APIError{Status: 409, Message: "Insufficient stock"})
	s := f.container.AddItem(ctx, "P1", "red-M", decimal.NewFromInt(500), 5)

	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "Insufficient stock", s.Error)
	assert.False(t, s.Loading)
	assert.False(t, s.IsOpen)
	require.Len(t, s.Items, 1)
	assert.Equal(t, 2, s.Count)

	f.remote.setErr(errors.New("connection reset"))
	s = f.container.RemoveItem(ctx, "P1", "red-M")
	assert.Equal(t, "Failed to remove from cart", s.Error)
	assert.Len(t, s.Items, 1)

	// an error never blocks the next operation
	f.remote.setErr(nil)
	s = f.container.Fetch(ctx)
	assert.Equal(t, StatusReady, s.Status)
	assert.Empty(t, s.Error)
}

func TestRemote_StatusMachine(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.fetchGate = make(chan struct{})

	assert.Equal(t, StatusIdle, f.container.Snapshot().Status)

	done := make(chan State, 1)
	go func() { done <- f.container.Fetch(ctx) }()

	require.Eventually(t, func() bool {
		return f.container.Snapshot().Status == StatusLoading
	}, time.Second, time.Millisecond)
	assert.True(t, f.container.Snapshot().Loading)

	close(f.remote.fetchGate)
	s := <-done
	assert.Equal(t, StatusReady, s.Status)
	assert.False(t, s.Loading)
}

func TestRemote_ConcurrentFetchesCollapse(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.items = []domain.CartItem{{ProductID: "P1", VariantKey: "red-M", Quantity: 1, UnitPrice: decimal.NewFromInt(5)}}
	gate := make(chan struct{})
	f.remote.fetchGate = gate

	ch, cancel := f.container.Subscribe()
	defer cancel()

	go f.container.Fetch(ctx)
	require.Eventually(t, func() bool {
		f.remote.mu.RLock()
		defer f.remote.mu.RUnlock()
		return f.remote.fetchCalls == 1
	}, time.Second, time.Millisecond)

	skipped := f.container.Fetch(ctx)
	assert.Equal(t, StatusLoading, skipped.Status)

	close(gate)
	require.Eventually(t, func() bool {
		select {
		case s := <-ch:
			return s.Status == StatusReady && s.Count == 1
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	f.remote.mu.RLock()
	defer f.remote.mu.RUnlock()
	assert.Equal(t, 1, f.remote.fetchCalls)
}

func TestRemote_FetchFailureRestoresSnapshot(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	snapCart := domain.Cart{Items: []domain.CartItem{{ProductID: "P1", VariantKey: "red-M", Quantity: 2, UnitPrice: decimal.NewFromInt(500)}}}
	snapCart.Recalculate()
	f.snaps.snaps["user-1"] = cartcache.Snapshot{Cart: snapCart, UserID: "user-1", Timestamp: time.Now().Add(-time.Hour)}

	f.remote.setErr(errors.New("timeout"))
	s := f.container.Fetch(ctx)

	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "Failed to load cart", s.Error)
	assert.True(t, s.Stale)
	assert.Equal(t, 2, s.Count)
}

func TestRemote_SuccessWritesSnapshot(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.container.AddItem(ctx, "P1", "red-M", decimal.NewFromInt(500), 1)

	snap, err := f.snaps.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Cart.Count)
}

func cancelSoon(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	return ctx
}

func TestRemote_CancelledFetchKeepsState(t *testing.T) {
	f := newFixture(t, true)
	before := f.container.AddItem(context.Background(), "P1", "red-M", decimal.NewFromInt(500), 2)
	require.Equal(t, StatusReady, before.Status)
	require.Equal(t, 2, before.Count)

	f.remote.setHang(true)
	s := f.container.Fetch(cancelSoon(t))

	assert.Equal(t, StatusReady, s.Status)
	assert.Empty(t, s.Error)
	assert.False(t, s.Loading)
	assert.Equal(t, 2, s.Count)
	assertConsistent(t, s)
	assert.Equal(t, s, f.container.Snapshot())
}

func TestRemote_CancelledMutationKeepsState(t *testing.T) {
	f := newFixture(t, true)
	f.container.AddItem(context.Background(), "P1", "red-M", decimal.NewFromInt(500), 2)

	f.remote.setHang(true)
	s := f.container.AddItem(cancelSoon(t), "P2", "blue-L", decimal.NewFromInt(300), 1)

	assert.Equal(t, StatusReady, s.Status)
	assert.Empty(t, s.Error)
	assert.False(t, s.Loading)
	assert.Equal(t, 2, s.Count)
	require.Len(t, s.Items, 1)
	assert.Equal(t, "P1", s.Items[0].ProductID)
}

func TestRemote_CancelledFetchKeepsPreviousError(t *testing.T) {
	f := newFixture(t, true)
	f.remote.setErr(errors.New("boom"))
	s := f.container.Fetch(context.Background())
	require.Equal(t, StatusError, s.Status)
	require.Equal(t, "Failed to load cart", s.Error)

	f.remote.setErr(nil)
	f.remote.setHang(true)
	s = f.container.Fetch(cancelSoon(t))

	assert.Equal(t, StatusError, s.Status)
	assert.Equal(t, "Failed to load cart", s.Error)
	assert.False(t, s.Loading)
}

func TestFetchCount_CancelledKeepsState(t *testing.T) {
	f := newFixture(t, true)
	f.container.AddItem(context.Background(), "P1", "red-M", decimal.NewFromInt(500), 2)

	f.remote.setHang(true)
	s := f.container.FetchCount(cancelSoon(t))

	assert.Equal(t, StatusReady, s.Status)
	assert.Empty(t, s.Error)
	assert.Equal(t, 2, s.Count)
}

func TestFetchCount_RefetchesOnMismatch(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.remote.items = []domain.CartItem{{ProductID: "P1", VariantKey: "red-M", Quantity: 2, UnitPrice: decimal.NewFromInt(5)}}

	f.container.Fetch(ctx)
	require.Equal(t, 1, f.remote.fetchCalls)

	s := f.container.FetchCount(ctx)
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 1, f.remote.fetchCalls, "matching count needs no refetch")

	f.remote.mu.Lock()
	f.remote.items = append(f.remote.items, domain.CartItem{ProductID: "P2", VariantKey: "x", Quantity: 1, UnitPrice: decimal.NewFromInt(5)})
	f.remote.mu.Unlock()

	s = f.container.FetchCount(ctx)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2, f.remote.fetchCalls)
	assertConsistent(t, s)
}

func TestMergeGuest_ClearsGuestOnSuccess(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.guest.AddItem(ctx, "P1", "red-M", 2, decimal.NewFromInt(500))

	require.NoError(t, f.container.MergeGuest(ctx))

	require.Len(t, f.remote.mergeCalls, 1)
	require.Len(t, f.remote.mergeCalls[0], 1)
	assert.Equal(t, 2, f.remote.mergeCalls[0][0].Quantity)
	assert.Empty(t, f.guest.Get(ctx).Items)
	assert.Equal(t, 2, f.container.Snapshot().Count)
}

func TestMergeGuest_KeepsRejectedLines(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.guest.AddItem(ctx, "P1", "red-M", 2, decimal.NewFromInt(500))
	f.guest.AddItem(ctx, "P2", "blue-L", 1, decimal.NewFromInt(300))
	f.remote.rejected = []domain.CartItem{{ProductID: "P2", VariantKey: "blue-L", Quantity: 1}}

	require.NoError(t, f.container.MergeGuest(ctx))

	left := f.guest.Get(ctx)
	require.Len(t, left.Items, 1)
	assert.Equal(t, "P2", left.Items[0].ProductID)
	assert.True(t, decimal.NewFromInt(300).Equal(left.Items[0].UnitPrice))
}

func TestMergeGuest_FailureKeepsGuestCart(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.guest.AddItem(ctx, "P1", "red-M", 2, decimal.NewFromInt(500))
	f.remote.setErr(errors.New("bad gateway"))

	err := f.container.MergeGuest(ctx)

	require.Error(t, err)
	assert.Equal(t, 2, f.guest.Get(ctx).Count)
}

func TestMergeGuest_EmptyGuestIsNoop(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.container.MergeGuest(context.Background()))
	assert.Empty(t, f.remote.mergeCalls)
}

func TestClearState_ResetsAndDropsSnapshot(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.container.AddItem(ctx, "P1", "red-M", decimal.NewFromInt(500), 1)
	require.True(t, f.container.Snapshot().IsOpen)

	f.container.ClearState(ctx)

	s := f.container.Snapshot()
	assert.Empty(t, s.Items)
	assert.Equal(t, 0, s.Count)
	assert.Equal(t, StatusIdle, s.Status)
	assert.True(t, s.IsOpen)
	_, err := f.snaps.Get(ctx, "user-1")
	assert.ErrorIs(t, err, cartcache.ErrCacheMiss)
}

func TestOpenCloseCart(t *testing.T) {
	f := newFixture(t, false)

	assert.True(t, f.container.OpenCart().IsOpen)
	assert.False(t, f.container.CloseCart().IsOpen)
	assert.Equal(t, 0, f.remote.fetchCalls)
}
