package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type CartHandler struct {
	timeout time.Duration
}

func NewCartHandler(timeout time.Duration) *CartHandler {
	return &CartHandler{timeout: timeout}
}

type AddItemRequestDTO struct {
	ProductID  string          `json:"productId"`
	VariantSku string          `json:"variantSku"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Quantity   int             `json:"quantity"`
}

type UpdateItemRequestDTO struct {
	ProductID  string `json:"productId"`
	VariantSku string `json:"variantSku"`
	Quantity   int    `json:"quantity"`
}

type RemoveItemRequestDTO struct {
	ProductID  string `json:"productId"`
	VariantSku string `json:"variantSku"`
}

type CountResponseDTO struct {
	Count int `json:"count"`
}

func (h *CartHandler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

func validLine(w http.ResponseWriter, productID, variantSku string) bool {
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return false
	}
	if variantSku == "" {
		respondError(w, http.StatusBadRequest, "invalid_variant", "variantSku is required")
		return false
	}
	return true
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	sess := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sess.Cart.Fetch(ctx))
}

func (h *CartHandler) GetCount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	sess := sessionFromContext(r.Context())
	st := sess.Cart.FetchCount(ctx)
	respondJSON(w, http.StatusOK, CountResponseDTO{Count: st.Count})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) || !validLine(w, req.ProductID, req.VariantSku) {
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	if req.UnitPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "unitPrice must not be negative")
		return
	}

	sess := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sess.Cart.AddItem(ctx, req.ProductID, req.VariantSku, req.UnitPrice, req.Quantity))
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req UpdateItemRequestDTO
	if !decodeJSON(w, r, &req) || !validLine(w, req.ProductID, req.VariantSku) {
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	sess := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sess.Cart.UpdateItem(ctx, req.ProductID, req.VariantSku, req.Quantity))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	var req RemoveItemRequestDTO
	if !decodeJSON(w, r, &req) || !validLine(w, req.ProductID, req.VariantSku) {
		return
	}

	sess := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sess.Cart.RemoveItem(ctx, req.ProductID, req.VariantSku))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	sess := sessionFromContext(r.Context())
	respondJSON(w, http.StatusOK, sess.Cart.Clear(ctx))
}

func (h *CartHandler) Open(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionFromContext(r.Context()).Cart.OpenCart())
}

func (h *CartHandler) Close(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionFromContext(r.Context()).Cart.CloseCart())
}
