package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type ProviderStatus string

const (
	ProviderAuthenticated   ProviderStatus = "authenticated"
	ProviderUnauthenticated ProviderStatus = "unauthenticated"
)

// ProviderSession is what the third-party sign-in provider says about the device.
type ProviderSession struct {
	Status  ProviderStatus
	User    *domain.User
	Expires time.Time
	Tokens  domain.TokenPair
}

func unauthenticated() ProviderSession {
	return ProviderSession{Status: ProviderUnauthenticated}
}

type providerClaims struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Picture      string `json:"picture"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	jwt.RegisteredClaims
}

// ProviderVerifier checks the HS256 session token the provider stores in a cookie.
type ProviderVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewProviderVerifier(secret string) *ProviderVerifier {
	return &ProviderVerifier{secret: []byte(secret), now: time.Now}
}

// Verify returns an unauthenticated session for a missing, expired or forged
// token. The error says why, for logging only.
func (v *ProviderVerifier) Verify(raw string) (ProviderSession, error) {
	if raw == "" || len(v.secret) == 0 {
		return unauthenticated(), nil
	}

	var claims providerClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return unauthenticated(), fmt.Errorf("invalid provider session: %w", err)
	}
	if claims.Subject == "" {
		return unauthenticated(), errors.New("invalid provider session: missing subject")
	}

	session := ProviderSession{
		Status: ProviderAuthenticated,
		User: &domain.User{
			ID:    claims.Subject,
			Email: claims.Email,
			Name:  claims.Name,
			Image: claims.Picture,
		},
		Tokens: domain.TokenPair{AccessToken: claims.AccessToken, RefreshToken: claims.RefreshToken},
	}
	if claims.ExpiresAt != nil {
		session.Expires = claims.ExpiresAt.Time
	}
	return session, nil
}

// Sign issues a provider session token. Used by tests and local tooling.
func (v *ProviderVerifier) Sign(user domain.User, tokens domain.TokenPair, expires time.Time) (string, error) {
	claims := providerClaims{
		Email:        user.Email,
		Name:         user.Name,
		Picture:      user.Image,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(v.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
