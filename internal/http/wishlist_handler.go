package http

import (
	"context"
	"net/http"
	"time"
)

type WishlistHandler struct {
	timeout time.Duration
}

func NewWishlistHandler(timeout time.Duration) *WishlistHandler {
	return &WishlistHandler{timeout: timeout}
}

type ToggleRequestDTO struct {
	ProductID string `json:"productId"`
}

func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sess.Wishlist.Fetch(ctx))
}

func (h *WishlistHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ToggleRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return
	}

	sess := sessionFromContext(r.Context())
	if !sess.Auth.IsAuthenticated() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "sign in to use the wishlist")
		return
	}
	respondJSON(w, http.StatusOK, sess.Wishlist.Toggle(ctx, req.ProductID))
}
