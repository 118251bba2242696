package auth

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/remote"
)

// API is the part of the remote client the sign-in flows use.
type API interface {
	StartOTP(ctx context.Context, channel, identifier string) (string, error)
	VerifyOTP(ctx context.Context, channel, identifier, otp string) (remote.AuthResult, error)
	Login(ctx context.Context, email, password string) (remote.AuthResult, error)
	Register(ctx context.Context, email, password, name string) (remote.AuthResult, error)
	Me(ctx context.Context) (*domain.User, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context) (domain.TokenPair, error)
}

// FlowError is a failed sign-in step with the message to show the shopper.
type FlowError struct {
	Message string
	Err     error
}

func (e *FlowError) Error() string { return e.Message + ": " + e.Err.Error() }
func (e *FlowError) Unwrap() error { return e.Err }

// Service runs the sign-in flows of one device session.
type Service struct {
	api        API
	store      *Store
	tokens     *Tokens
	alternates *AlternateSessions
	teardown   *Reconciler
	deviceID   string
	now        func() time.Time
}

type ServiceConfig struct {
	API        API
	Store      *Store
	Tokens     *Tokens
	Alternates *AlternateSessions
	Reconciler *Reconciler
	DeviceID   string
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		api:        cfg.API,
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		alternates: cfg.Alternates,
		teardown:   cfg.Reconciler,
		deviceID:   cfg.DeviceID,
		now:        time.Now,
	}
}

func (s *Service) fail(ctx context.Context, err error, fallback string) error {
	msg := remote.Message(err, fallback)
	logger.Printf(ctx, "auth: device %s: %s: %v", s.deviceID, fallback, err)
	s.store.LoginFailure(msg)
	return &FlowError{Message: msg, Err: err}
}

func (s *Service) signIn(res remote.AuthResult) *domain.User {
	s.tokens.SetTokens(res.Tokens)
	s.store.LoginSuccess(res.User, res.Tokens)
	return res.User
}

// StartOTP sends a one-time code over channel and returns the backend message.
func (s *Service) StartOTP(ctx context.Context, channel, identifier string) (string, error) {
	s.store.LoginStart()
	msg, err := s.api.StartOTP(ctx, channel, identifier)
	if err != nil {
		return "", s.fail(ctx, err, "Failed to send OTP")
	}
	s.store.ClearLoading()
	return msg, nil
}

func (s *Service) VerifyOTP(ctx context.Context, channel, identifier, otp string) (*domain.User, error) {
	s.store.LoginStart()
	res, err := s.api.VerifyOTP(ctx, channel, identifier, otp)
	if err != nil {
		return nil, s.fail(ctx, err, "Invalid OTP")
	}
	user := s.signIn(res)

	if channel == remote.ChannelEmail && user != nil && s.alternates != nil {
		s.alternates.Save(ctx, s.deviceID, NewEmailOTPSession(*user, res.Tokens, s.now()))
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, error) {
	s.store.LoginStart()
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, s.fail(ctx, err, "Login failed")
	}
	return s.signIn(res), nil
}

// Register creates an account and signs in when the backend returns tokens.
func (s *Service) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	s.store.LoginStart()
	res, err := s.api.Register(ctx, email, password, name)
	if err != nil {
		return nil, s.fail(ctx, err, "Registration failed")
	}
	if res.Tokens.AccessToken == "" {
		s.store.ClearLoading()
		return res.User, nil
	}
	return s.signIn(res), nil
}

// Refresh rotates the token pair. A rejected refresh token signs the device out.
func (s *Service) Refresh(ctx context.Context) (domain.TokenPair, error) {
	pair, err := s.api.Refresh(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrSessionExpired) || errors.Is(err, remote.ErrUnauthenticated) {
			s.teardown.Logout(ctx)
		}
		return domain.TokenPair{}, &FlowError{Message: remote.Message(err, "Failed to refresh session"), Err: err}
	}
	s.store.UpdateTokens(pair)
	return pair, nil
}

// Me loads the signed-in user and stores it in the auth state.
func (s *Service) Me(ctx context.Context) (*domain.User, error) {
	user, err := s.api.Me(ctx)
	if err != nil {
		return nil, &FlowError{Message: remote.Message(err, "Failed to load profile"), Err: err}
	}
	s.store.LoginSuccess(user, s.tokens.Tokens())
	return user, nil
}

// Logout signs the device out. The backend call is best effort; local state
// is always torn down.
func (s *Service) Logout(ctx context.Context) {
	if refresh := s.tokens.Tokens().RefreshToken; refresh != "" {
		if err := s.api.Logout(ctx, refresh); err != nil {
			logger.Printf(ctx, "auth: server logout failed for device %s: %v", s.deviceID, err)
		}
	}
	s.teardown.Logout(ctx)
}
