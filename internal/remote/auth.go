package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// OTP delivery channels supported by the backend.
const (
	ChannelPhone = "phone"
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

type wireUser struct {
	ID        string `json:"id"`
	MongoID   string `json:"_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	AvatarURL string `json:"avatarUrl"`
}

func (w *wireUser) toDomain() *domain.User {
	if w == nil {
		return nil
	}
	u := &domain.User{ID: w.ID, Email: w.Email, Name: w.Name, Image: w.Image}
	if u.ID == "" {
		u.ID = w.MongoID
	}
	if u.Image == "" {
		u.Image = w.AvatarURL
	}
	return u
}

// AuthResult is returned by every flow that signs a shopper in.
type AuthResult struct {
	Tokens domain.TokenPair
	User   *domain.User
}

type wireAuth struct {
	Message      string    `json:"message"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	User         *wireUser `json:"user"`
}

func (w wireAuth) result() AuthResult {
	return AuthResult{
		Tokens: domain.TokenPair{AccessToken: w.AccessToken, RefreshToken: w.RefreshToken},
		User:   w.User.toDomain(),
	}
}

func otpField(channel string) (string, error) {
	switch channel {
	case ChannelPhone, ChannelSMS:
		return "phone", nil
	case ChannelEmail:
		return "email", nil
	default:
		return "", fmt.Errorf("unknown otp channel %q", channel)
	}
}

// StartOTP asks the backend to send a one-time code. It returns the backend message.
func (s *Session) StartOTP(ctx context.Context, channel, identifier string) (string, error) {
	field, err := otpField(channel)
	if err != nil {
		return "", err
	}
	var out wireAuth
	if err := s.do(ctx, http.MethodPost, "auth/"+channel+"/start", map[string]string{field: identifier}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (s *Session) VerifyOTP(ctx context.Context, channel, identifier, otp string) (AuthResult, error) {
	field, err := otpField(channel)
	if err != nil {
		return AuthResult{}, err
	}
	var out wireAuth
	if err := s.do(ctx, http.MethodPost, "auth/"+channel+"/verify", map[string]string{field: identifier, "otp": otp}, &out); err != nil {
		return AuthResult{}, err
	}
	return out.result(), nil
}

func (s *Session) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out wireAuth
	if err := s.do(ctx, http.MethodPost, "auth/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return AuthResult{}, err
	}
	return out.result(), nil
}

// Register creates an account. Tokens are empty when the backend requires a
// separate login.
func (s *Session) Register(ctx context.Context, email, password, name string) (AuthResult, error) {
	var out wireAuth
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := s.do(ctx, http.MethodPost, "auth/register", body, &out); err != nil {
		return AuthResult{}, err
	}
	return out.result(), nil
}

func (s *Session) Me(ctx context.Context) (*domain.User, error) {
	var out struct {
		User *wireUser `json:"user"`
	}
	if err := s.do(ctx, http.MethodGet, "auth/me", nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, &APIError{Status: http.StatusNotFound, Message: "user not found"}
	}
	return out.User.toDomain(), nil
}

func (s *Session) Logout(ctx context.Context, refreshToken string) error {
	return s.do(ctx, http.MethodPost, "auth/logout", map[string]string{"refreshToken": refreshToken}, nil)
}

// Refresh trades the session's refresh token for a new pair and stores it.
func (s *Session) Refresh(ctx context.Context) (domain.TokenPair, error) {
	if s.tokens == nil {
		return domain.TokenPair{}, ErrUnauthenticated
	}
	if err := s.refresh(ctx, s.accessToken()); err != nil {
		return domain.TokenPair{}, err
	}
	return s.tokens.Tokens(), nil
}
