package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func TestTokens_RestoreOnlyFillsEmptyStore(t *testing.T) {
	tokens := NewTokens()

	tokens.Restore(domain.TokenPair{AccessToken: "cookie", RefreshToken: "cookie-r"})
	_, changed := tokens.TakeChanged()
	assert.False(t, changed, "restoring from cookies is not a change")

	tokens.SetTokens(domain.TokenPair{AccessToken: "fresh", RefreshToken: "fresh-r"})
	tokens.Restore(domain.TokenPair{AccessToken: "old", RefreshToken: "old-r"})

	assert.Equal(t, "fresh", tokens.Tokens().AccessToken)
}

func TestTokens_TakeChanged(t *testing.T) {
	tokens := NewTokens()
	tokens.SetTokens(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})

	pair, changed := tokens.TakeChanged()
	assert.True(t, changed)
	assert.Equal(t, "a", pair.AccessToken)

	_, changed = tokens.TakeChanged()
	assert.False(t, changed)

	tokens.Clear()
	pair, changed = tokens.TakeChanged()
	assert.True(t, changed)
	assert.Empty(t, pair.AccessToken)
}

func TestTokens_Invalidate(t *testing.T) {
	tokens := NewTokens()
	tokens.SetTokens(domain.TokenPair{AccessToken: "a", RefreshToken: "r"})

	tokens.Invalidate()

	assert.Empty(t, tokens.Tokens().RefreshToken)
	assert.True(t, tokens.Invalidated())
	assert.False(t, tokens.Invalidated(), "flag is reset once read")
}
