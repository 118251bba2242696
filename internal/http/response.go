package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/fjod/go_cart/storefront/internal/auth"
	"github.com/fjod/go_cart/storefront/internal/remote"
)

const loginPath = "/accounts/login"

type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Details  string `json:"details,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondSessionExpired(w http.ResponseWriter) {
	respondJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error:    "Your session has expired, please log in again",
		Code:     "session_expired",
		Redirect: loginPath,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// handleError maps remote and flow errors to HTTP statuses.
func handleError(w http.ResponseWriter, err error, fallback string) {
	message := remote.Message(err, fallback)
	var flowErr *auth.FlowError
	if errors.As(err, &flowErr) {
		message = flowErr.Message
	}

	var apiErr *remote.APIError
	switch {
	case errors.Is(err, remote.ErrSessionExpired):
		respondSessionExpired(w)
	case errors.Is(err, remote.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated", message)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", message)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", message)
	case errors.As(err, &apiErr):
		status, code := apiStatus(apiErr.Status)
		respondError(w, status, code, message)
	case flowErr != nil:
		respondError(w, http.StatusBadRequest, "invalid_argument", message)
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", message)
	}
}

func apiStatus(status int) (int, string) {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return http.StatusBadRequest, "invalid_argument"
	case status == http.StatusUnauthorized:
		return http.StatusUnauthorized, "unauthenticated"
	case status == http.StatusForbidden:
		return http.StatusForbidden, "permission_denied"
	case status == http.StatusNotFound:
		return http.StatusNotFound, "not_found"
	case status == http.StatusConflict:
		return http.StatusConflict, "already_exists"
	case status == http.StatusTooManyRequests:
		return http.StatusTooManyRequests, "rate_limit_exceeded"
	case status >= 500:
		return http.StatusBadGateway, "upstream_error"
	default:
		// 2xx with success:false
		return http.StatusBadRequest, "rejected"
	}
}
