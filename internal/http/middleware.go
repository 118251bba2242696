package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/session"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sessionKey   contextKey = "device_session"
)

const (
	deviceCookieName  = "storefront_device"
	deviceIDValue     = "device_id"
	deviceSessionAge  = 30 * 24 * time.Hour
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
	accessCookieAge   = 15 * time.Minute
	refreshCookieAge  = 12 * 24 * time.Hour
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func sessionFromContext(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

type CookieConfig struct {
	// HashKey signs every cookie, BlockKey (16, 24 or 32 bytes) encrypts them when set.
	HashKey        string
	BlockKey       string
	Secure         bool
	ProviderCookie string
}

// Sessions binds requests to device sessions and keeps their auth state in
// sync with the cookies the browser sends.
type Sessions struct {
	manager    *session.Manager
	verifier   *auth.ProviderVerifier
	alternates *auth.AlternateSessions
	store      sessions.Store
	codec      *securecookie.SecureCookie
	cookies    CookieConfig
}

func NewSessions(manager *session.Manager, verifier *auth.ProviderVerifier, alternates *auth.AlternateSessions, cfg CookieConfig) *Sessions {
	var blockKey []byte
	switch len(cfg.BlockKey) {
	case 0:
	case 16, 24, 32:
		blockKey = []byte(cfg.BlockKey)
	default:
		logger.Printf(context.Background(), "cookie block key must be 16, 24 or 32 bytes, cookies will be signed only")
	}

	keyPairs := [][]byte{[]byte(cfg.HashKey)}
	if blockKey != nil {
		keyPairs = append(keyPairs, blockKey)
	}
	store := sessions.NewCookieStore(keyPairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(deviceSessionAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	codec := securecookie.New([]byte(cfg.HashKey), blockKey)
	codec.MaxAge(int(refreshCookieAge.Seconds()))

	return &Sessions{
		manager:    manager,
		verifier:   verifier,
		alternates: alternates,
		store:      store,
		codec:      codec,
		cookies:    cfg,
	}
}

// Device resolves the device id from the session cookie, issuing a new one
// for first-time visitors.
func (s *Sessions) Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := s.store.Get(r, deviceCookieName)
		if err != nil {
			// tampered or signed with an old key, start over
			logger.Printf(r.Context(), "device cookie rejected: %v", err)
		}

		deviceID, _ := cookie.Values[deviceIDValue].(string)
		if deviceID == "" {
			deviceID = uuid.NewString()
			cookie.Values[deviceIDValue] = deviceID
			if err := cookie.Save(r, w); err != nil {
				logger.Printf(r.Context(), "failed to save device cookie: %v", err)
			}
		}

		ctx := context.WithValue(r.Context(), sessionKey, s.manager.Get(deviceID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Reconcile restores credentials from cookies and reconciles the identity of
// the device before the handler runs. The handler output is buffered so a
// session that expired while it ran can be answered with a 401 instead.
func (s *Sessions) Reconcile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFromContext(r.Context())
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}

		s.restoreTokens(r, sess)
		s.sync(r, sess)

		buf := newBufferedWriter()
		next.ServeHTTP(buf, r)

		if sess.Tokens.Invalidated() {
			s.forceLogout(w, r, sess)
			return
		}
		s.writeTokens(w, sess)
		buf.flushTo(w)
	})
}

func (s *Sessions) restoreTokens(r *http.Request, sess *session.Session) {
	if current := sess.Tokens.Tokens(); current.AccessToken != "" || current.RefreshToken != "" {
		return
	}

	var pair domain.TokenPair
	if c, err := r.Cookie(accessCookieName); err == nil {
		if err := s.codec.Decode(accessCookieName, c.Value, &pair.AccessToken); err != nil {
			logger.Printf(r.Context(), "access token cookie rejected: %v", err)
		}
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		if err := s.codec.Decode(refreshCookieName, c.Value, &pair.RefreshToken); err != nil {
			logger.Printf(r.Context(), "refresh token cookie rejected: %v", err)
		}
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return
	}
	sess.Tokens.Restore(pair)

	// the device session was evicted or the process restarted
	if !sess.Auth.IsAuthenticated() {
		if _, err := sess.Service.Me(r.Context()); err != nil {
			logger.Printf(r.Context(), "could not restore user of device %s: %v", sess.ID, err)
		}
	}
}

// sync runs the reconciler with the identity sources of r.
func (s *Sessions) sync(r *http.Request, sess *session.Session) auth.Outcome {
	var in auth.Inputs
	if c, err := r.Cookie(s.cookies.ProviderCookie); err == nil && s.verifier != nil {
		provider, err := s.verifier.Verify(c.Value)
		if err != nil {
			logger.Printf(r.Context(), "provider session rejected: %v", err)
		}
		in.Provider = provider
	}
	if s.alternates != nil {
		in.Alternate = s.alternates.Load(r.Context(), sess.ID)
	}
	return sess.Reconciler.Sync(r.Context(), in)
}

func (s *Sessions) forceLogout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	logger.Printf(r.Context(), "request %s: session of device %s expired, signing out", getRequestID(r.Context()), sess.ID)
	sess.Reconciler.Logout(r.Context())
	s.writeTokens(w, sess)
	s.clearProviderCookie(w)
	respondSessionExpired(w)
}

// writeTokens mirrors the credential store into cookies when it changed.
func (s *Sessions) writeTokens(w http.ResponseWriter, sess *session.Session) {
	pair, changed := sess.Tokens.TakeChanged()
	if !changed {
		return
	}
	s.setCookie(w, accessCookieName, pair.AccessToken, accessCookieAge)
	s.setCookie(w, refreshCookieName, pair.RefreshToken, refreshCookieAge)
}

func (s *Sessions) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if value == "" {
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
		return
	}

	encoded, err := s.codec.Encode(name, value)
	if err != nil {
		logger.Printf(context.Background(), "failed to encode %s cookie: %v", name, err)
		return
	}
	cookie.Value = encoded
	cookie.MaxAge = int(maxAge.Seconds())
	http.SetCookie(w, cookie)
}

func (s *Sessions) clearProviderCookie(w http.ResponseWriter) {
	if s.cookies.ProviderCookie == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookies.ProviderCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = append(w.Header()[k], v...)
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	w.WriteHeader(b.status)
	if _, err := w.Write(b.body.Bytes()); err != nil {
		logger.Printf(context.Background(), "failed to write response: %v", err)
	}
}
