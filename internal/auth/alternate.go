package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/storage"
)

const alternateSessionTTL = 30 * 24 * time.Hour

// AlternateSession is the session record kept for shoppers who signed in
// with an email OTP instead of the provider.
type AlternateSession struct {
	User         domain.User `json:"user"`
	Expires      time.Time   `json:"expires"`
	Provider     string      `json:"provider"`
	AccessToken  string      `json:"accessToken,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
}

func NewEmailOTPSession(user domain.User, tokens domain.TokenPair, now time.Time) AlternateSession {
	return AlternateSession{
		User:         user,
		Expires:      now.Add(alternateSessionTTL).UTC(),
		Provider:     "email",
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
}

// AlternateSessions stores AlternateSession records per device. Like the
// guest cart it fails soft.
type AlternateSessions struct {
	kv  storage.KV
	now func() time.Time
}

func NewAlternateSessions(kv storage.KV) *AlternateSessions {
	return &AlternateSessions{kv: kv, now: time.Now}
}

func alternateKey(deviceID string) string {
	return "email-otp-session:" + deviceID
}

// Load returns nil when there is no usable record.
func (a *AlternateSessions) Load(ctx context.Context, deviceID string) *AlternateSession {
	data, err := a.kv.Get(ctx, alternateKey(deviceID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Printf(ctx, "auth: failed to read otp session for device %s: %v", deviceID, err)
		}
		return nil
	}

	var rec AlternateSession
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Printf(ctx, "auth: discarding unreadable otp session for device %s: %v", deviceID, err)
		return nil
	}
	if rec.User.ID == "" || !rec.Expires.After(a.now()) {
		return nil
	}
	return &rec
}

func (a *AlternateSessions) Save(ctx context.Context, deviceID string, rec AlternateSession) {
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Printf(ctx, "auth: marshal otp session failed: %v", err)
		return
	}
	ttl := rec.Expires.Sub(a.now())
	if ttl <= 0 {
		return
	}
	if err := a.kv.Set(ctx, alternateKey(deviceID), data, ttl); err != nil {
		logger.Printf(ctx, "auth: failed to save otp session for device %s: %v", deviceID, err)
	}
}

func (a *AlternateSessions) Clear(ctx context.Context, deviceID string) {
	if err := a.kv.Delete(ctx, alternateKey(deviceID)); err != nil {
		logger.Printf(ctx, "auth: failed to clear otp session for device %s: %v", deviceID, err)
	}
}
