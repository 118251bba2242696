package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func TestProviderVerifier_RoundTrip(t *testing.T) {
	v := NewProviderVerifier("test-secret")
	expires := time.Now().Add(time.Hour).Truncate(time.Second)

	raw, err := v.Sign(domain.User{ID: "u1", Email: "u1@example.com", Name: "Asha"}, domain.TokenPair{AccessToken: "a", RefreshToken: "r"}, expires)
	require.NoError(t, err)

	session, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, ProviderAuthenticated, session.Status)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, "Asha", session.User.Name)
	assert.Equal(t, "a", session.Tokens.AccessToken)
	assert.True(t, expires.Equal(session.Expires))
}

func TestProviderVerifier_Rejects(t *testing.T) {
	v := NewProviderVerifier("test-secret")
	user := domain.User{ID: "u1"}

	expired, err := v.Sign(user, domain.TokenPair{}, time.Now().Add(-time.Minute))
	require.NoError(t, err)

	forged, err := NewProviderVerifier("other-secret").Sign(user, domain.TokenPair{}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := v.Sign(domain.User{}, domain.TokenPair{}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{"expired", expired},
		{"wrong secret", forged},
		{"alg none", unsigned},
		{"missing subject", noSubject},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := v.Verify(tt.raw)
			assert.Error(t, err)
			assert.Equal(t, ProviderUnauthenticated, session.Status)
			assert.Nil(t, session.User)
		})
	}
}

func TestProviderVerifier_EmptyCookie(t *testing.T) {
	session, err := NewProviderVerifier("test-secret").Verify("")

	assert.NoError(t, err)
	assert.Equal(t, ProviderUnauthenticated, session.Status)
}
