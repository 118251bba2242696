// Package remote is the client of the e-commerce REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
)

const (
	DefaultTimeout = 15 * time.Second

	headerTokenRefreshed  = "X-Token-Refreshed"
	headerNewAccessToken  = "X-New-Access-Token"
	headerNewRefreshToken = "X-New-Refresh-Token"

	maxBodySize = 4 << 20
)

// TokenStore holds the credentials of one device session.
type TokenStore interface {
	Tokens() domain.TokenPair
	SetTokens(domain.TokenPair)
	// Invalidate drops the tokens after the backend refused to refresh them.
	Invalidate()
}

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	// Breaker tuning; zero values fall back to defaults.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Client is shared by all device sessions. It owns the HTTP connection pool,
// the circuit breaker and the refresh coalescing.
type Client struct {
	baseURL   string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*response]
	refreshes singleflight.Group
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "remote-api",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf(context.Background(), "circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// a 4xx is the backend answering, not the backend failing
			var apiErr *APIError
			return err == nil || (errors.As(err, &apiErr) && apiErr.Status < 500)
		},
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		breaker: gobreaker.NewCircuitBreaker[*response](settings),
	}
}

// Session binds the client to the credentials of one device.
type Session struct {
	client *Client
	tokens TokenStore
}

func (c *Client) Bind(tokens TokenStore) *Session {
	return &Session{client: c, tokens: tokens}
}

// Public returns a session that never sends credentials.
func (c *Client) Public() *Session {
	return &Session{client: c}
}

func (s *Session) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request failed: %w", err)
		}
	}

	token := s.accessToken()
	resp, err := s.client.roundTrip(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized && s.tokens != nil {
		if token == "" && s.tokens.Tokens().RefreshToken == "" {
			// nothing to recover with, e.g. a failed login
			return fmt.Errorf("%w: %w", ErrUnauthenticated, newAPIError(resp))
		}
		if err := s.refresh(ctx, token); err != nil {
			return err
		}
		if resp, err = s.client.roundTrip(ctx, method, path, payload, s.accessToken()); err != nil {
			return err
		}
	}

	if resp.status >= 400 {
		return newAPIError(resp)
	}
	s.adoptRefreshedTokens(resp.header)

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode %s %s response failed: %w", method, path, err)
	}
	return nil
}

func (s *Session) accessToken() string {
	if s.tokens == nil {
		return ""
	}
	return s.tokens.Tokens().AccessToken
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, token string) (*response, error) {
	return c.breaker.Execute(func() (*response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
		if err != nil {
			return nil, fmt.Errorf("build request failed: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("read %s %s response failed: %w", method, path, err)
		}

		resp := &response{status: res.StatusCode, header: res.Header, body: data}
		if resp.status >= 500 {
			return nil, newAPIError(resp)
		}
		return resp, nil
	})
}

// refresh trades the refresh token for a new pair. stale is the access token
// the backend just rejected; if the pair already moved on, another caller
// refreshed it and there is nothing to do. Concurrent callers holding the
// same refresh token share one backend call.
func (s *Session) refresh(ctx context.Context, stale string) error {
	pair := s.tokens.Tokens()
	if pair.AccessToken != "" && pair.AccessToken != stale {
		return nil
	}
	refreshToken := pair.RefreshToken
	if refreshToken == "" {
		return ErrUnauthenticated
	}

	_, err, _ := s.client.refreshes.Do(refreshToken, func() (interface{}, error) {
		if cur := s.tokens.Tokens(); cur.AccessToken != "" && cur.AccessToken != stale {
			return cur, nil
		}
		// one caller going away must not fail the refresh for the others
		next, err := s.client.refreshTokens(context.WithoutCancel(ctx), refreshToken)
		if err != nil {
			return nil, err
		}
		s.tokens.SetTokens(next)
		return next, nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			logger.Printf(ctx, "token refresh rejected: %v", err)
			s.tokens.Invalidate()
			return ErrSessionExpired
		}
		return fmt.Errorf("token refresh failed: %w", err)
	}
	return nil
}

func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("marshal refresh request failed: %w", err)
	}

	resp, err := c.roundTrip(ctx, http.MethodPost, "auth/refresh", payload, "")
	if err != nil {
		return domain.TokenPair{}, err
	}
	if resp.status >= 400 {
		return domain.TokenPair{}, newAPIError(resp)
	}

	var pair domain.TokenPair
	if err := json.Unmarshal(resp.body, &pair); err != nil {
		return domain.TokenPair{}, fmt.Errorf("decode refresh response failed: %w", err)
	}
	if pair.AccessToken == "" {
		return domain.TokenPair{}, &APIError{Status: http.StatusUnauthorized, Message: "refresh returned no access token"}
	}
	return pair, nil
}

// adoptRefreshedTokens picks up tokens the backend rotated on its own.
func (s *Session) adoptRefreshedTokens(h http.Header) {
	if s.tokens == nil || h.Get(headerTokenRefreshed) != "true" {
		return
	}
	access, refresh := h.Get(headerNewAccessToken), h.Get(headerNewRefreshToken)
	if access == "" || refresh == "" {
		return
	}
	s.tokens.SetTokens(domain.TokenPair{AccessToken: access, RefreshToken: refresh})
}

func newAPIError(resp *response) *APIError {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(resp.body, &body)

	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.status)
	}
	return &APIError{Status: resp.status, Message: msg}
}
