package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired means the backend rejected the refresh token. The
	// caller must drop every credential and dependent state.
	ErrSessionExpired = errors.New("session expired")

	// ErrUnauthenticated is returned for an authenticated call made without
	// any refresh token to recover with.
	ErrUnauthenticated = errors.New("not authenticated")
)

// APIError is a non-2xx answer of the remote API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote api: status %d: %s", e.Status, e.Message)
}

// Message returns the text to show a shopper for err: the backend message
// when there is one, fallback otherwise.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrSessionExpired) {
		return "Your session has expired, please log in again"
	}
	return fallback
}
