package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/fjod/go_cart/storefront/internal/session"
)

type AuthHandler struct {
	sessions *Sessions
	timeout  time.Duration
}

func NewAuthHandler(sessions *Sessions, timeout time.Duration) *AuthHandler {
	return &AuthHandler{sessions: sessions, timeout: timeout}
}

type OTPRequestDTO struct {
	Phone string `json:"phone"`
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type CredentialsRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type MessageResponseDTO struct {
	Message string `json:"message"`
}

type AuthResponseDTO struct {
	User *domain.User `json:"user,omitempty"`
	Auth auth.State   `json:"auth"`
}

func (h *AuthHandler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

// otpIdentifier returns the channel of the request and the phone or email it
// addresses.
func otpIdentifier(w http.ResponseWriter, r *http.Request, req OTPRequestDTO) (string, string, bool) {
	channel := chi.URLParam(r, "channel")
	var identifier string
	switch channel {
	case remote.ChannelPhone, remote.ChannelSMS:
		identifier = req.Phone
	case remote.ChannelEmail:
		identifier = req.Email
	default:
		respondError(w, http.StatusNotFound, "unknown_channel", "unknown otp channel "+channel)
		return "", "", false
	}
	if identifier == "" {
		respondError(w, http.StatusBadRequest, "invalid_identifier", "phone or email is required")
		return "", "", false
	}
	return channel, identifier, true
}

func (h *AuthHandler) StartOTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req OTPRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	channel, identifier, ok := otpIdentifier(w, r, req)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	msg, err := sess.Service.StartOTP(ctx, channel, identifier)
	if err != nil {
		handleError(w, err, "Failed to send OTP")
		return
	}
	respondJSON(w, http.StatusOK, MessageResponseDTO{Message: msg})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req OTPRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	channel, identifier, ok := otpIdentifier(w, r, req)
	if !ok {
		return
	}
	if req.OTP == "" {
		respondError(w, http.StatusBadRequest, "invalid_otp", "otp is required")
		return
	}

	sess := sessionFromContext(r.Context())
	user, err := sess.Service.VerifyOTP(ctx, channel, identifier, req.OTP)
	h.signedIn(w, r, sess, user, err, "Invalid OTP")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req CredentialsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
		return
	}

	sess := sessionFromContext(r.Context())
	user, err := sess.Service.Login(ctx, req.Email, req.Password)
	h.signedIn(w, r, sess, user, err, "Login failed")
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req CredentialsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
		return
	}

	sess := sessionFromContext(r.Context())
	user, err := sess.Service.Register(ctx, req.Email, req.Password, req.Name)
	if err == nil && !sess.Auth.IsAuthenticated() {
		respondJSON(w, http.StatusCreated, AuthResponseDTO{User: user, Auth: sess.Auth.Snapshot()})
		return
	}
	h.signedIn(w, r, sess, user, err, "Registration failed")
}

// signedIn finishes a sign-in flow: the reconciler merges the guest cart and
// loads the account cart before the response is written.
func (h *AuthHandler) signedIn(w http.ResponseWriter, r *http.Request, sess *session.Session, user *domain.User, err error, fallback string) {
	if err != nil {
		handleError(w, err, fallback)
		return
	}
	h.sessions.sync(r, sess)
	respondJSON(w, http.StatusOK, AuthResponseDTO{User: user, Auth: sess.Auth.Snapshot()})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	sess := sessionFromContext(r.Context())
	sess.Service.Logout(ctx)
	h.sessions.clearProviderCookie(w)
	respondJSON(w, http.StatusOK, AuthResponseDTO{Auth: sess.Auth.Snapshot()})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	sess := sessionFromContext(r.Context())
	if _, err := sess.Service.Refresh(ctx); err != nil {
		handleError(w, err, "Failed to refresh session")
		return
	}
	respondJSON(w, http.StatusOK, AuthResponseDTO{Auth: sess.Auth.Snapshot()})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	sess := sessionFromContext(r.Context())
	if !sess.Auth.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "not signed in")
		return
	}
	user, err := sess.Service.Me(ctx)
	if err != nil {
		handleError(w, err, "Failed to load profile")
		return
	}
	respondJSON(w, http.StatusOK, AuthResponseDTO{User: user, Auth: sess.Auth.Snapshot()})
}

// Session reports the auth state of the device without calling the backend.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	st := sess.Auth.Snapshot()
	respondJSON(w, http.StatusOK, AuthResponseDTO{User: st.User, Auth: st})
}
