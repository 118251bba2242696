package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

// CartSync is the part of the cart container the reconciler drives.
type CartSync interface {
	MergeGuest(ctx context.Context) error
	Fetch(ctx context.Context) cart.State
	ClearState(ctx context.Context)
}

type WishlistSync interface {
	ClearState(ctx context.Context)
}

// Inputs are the identity sources seen on one request.
type Inputs struct {
	Provider  ProviderSession
	Alternate *AlternateSession
}

type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeSignedIn
	OutcomeSignedOut
)

type identity struct {
	user    domain.User
	expires time.Time
	tokens  domain.TokenPair
	// external identities are not in the auth store yet
	external bool
}

func (i identity) fingerprint() string {
	var expires string
	if !i.expires.IsZero() {
		expires = strconv.FormatInt(i.expires.Unix(), 10)
	}
	sum := sha256.Sum256([]byte(i.user.ID + "|" + i.user.Email + "|" + expires))
	return hex.EncodeToString(sum[:])
}

// Reconciler turns the identity sources of a device into one auth state and
// runs the sign-in and sign-out side effects exactly once per transition.
type Reconciler struct {
	mu sync.Mutex

	store      *Store
	creds      *Tokens
	cart       CartSync
	wishlist   WishlistSync
	alternates *AlternateSessions
	deviceID   string

	lastFingerprint string
	lastUserID      string
	mergeDone       bool
}

type ReconcilerConfig struct {
	Store      *Store
	Tokens     *Tokens
	Cart       CartSync
	Wishlist   WishlistSync
	Alternates *AlternateSessions
	DeviceID   string
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		store:      cfg.Store,
		creds:      cfg.Tokens,
		cart:       cfg.Cart,
		wishlist:   cfg.Wishlist,
		alternates: cfg.Alternates,
		deviceID:   cfg.DeviceID,
	}
}

// Sync compares in with the last identity it processed. A new identity is
// written to the credential and auth stores, the guest cart is merged once,
// then the account cart is fetched. Losing every identity tears the session
// state down.
func (r *Reconciler) Sync(ctx context.Context, in Inputs) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.resolve(in)
	if !ok {
		if r.lastFingerprint != "" {
			r.logout(ctx)
			return OutcomeSignedOut
		}
		return OutcomeUnchanged
	}

	fp := id.fingerprint()
	if fp == r.lastFingerprint {
		return OutcomeUnchanged
	}
	// the auth store carries no expiry; it only restates who is signed in
	if !id.external && r.lastUserID != "" && id.user.ID == r.lastUserID {
		return OutcomeUnchanged
	}
	r.lastFingerprint = fp
	r.lastUserID = id.user.ID

	if id.external {
		if id.tokens.AccessToken != "" {
			r.creds.SetTokens(id.tokens)
		}
		user := id.user
		r.store.LoginSuccess(&user, r.creds.Tokens())
	}

	if !r.mergeDone {
		// set first: a failed merge is not retried in this process
		r.mergeDone = true
		if err := r.cart.MergeGuest(ctx); err != nil {
			logger.Printf(ctx, "auth: guest cart merge failed for device %s, keeping guest cart: %v", r.deviceID, err)
		}
	}
	r.cart.Fetch(ctx)
	return OutcomeSignedIn
}

// resolve picks the identity to use: the OTP record first, then the
// provider, then the auth store.
func (r *Reconciler) resolve(in Inputs) (identity, bool) {
	if alt := in.Alternate; alt != nil {
		return identity{
			user:     alt.User,
			expires:  alt.Expires,
			tokens:   domain.TokenPair{AccessToken: alt.AccessToken, RefreshToken: alt.RefreshToken},
			external: true,
		}, true
	}
	if p := in.Provider; p.Status == ProviderAuthenticated && p.User != nil {
		return identity{
			user:     *p.User,
			expires:  p.Expires,
			tokens:   p.Tokens,
			external: true,
		}, true
	}
	if st := r.store.Snapshot(); st.IsAuthenticated {
		var user domain.User
		if st.User != nil {
			user = *st.User
		}
		return identity{user: user}, true
	}
	return identity{}, false
}

// Logout tears down every state that depends on the signed-in user.
func (r *Reconciler) Logout(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logout(ctx)
}

func (r *Reconciler) logout(ctx context.Context) {
	r.lastFingerprint = ""
	r.lastUserID = ""
	r.mergeDone = false

	// the cart needs the user id to drop its snapshot, clear it first
	r.cart.ClearState(ctx)
	if r.wishlist != nil {
		r.wishlist.ClearState(ctx)
	}
	if r.alternates != nil {
		r.alternates.Clear(ctx, r.deviceID)
	}
	r.store.Logout()
	r.creds.Clear()
}
