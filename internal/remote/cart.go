package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// envelope is the common response shape of the API.
type envelope[T any] struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type wireItem struct {
	ProductID  string          `json:"productId"`
	Product    json.RawMessage `json:"product"`
	VariantSku string          `json:"variantSku"`
	Quantity   int             `json:"quantity"`
	PriceAtAdd decimal.Decimal `json:"priceAtAdd"`
	Variant    *domain.Variant `json:"variant"`
}

type wireCart struct {
	Items         []wireItem `json:"items"`
	RejectedItems []wireItem `json:"rejectedItems"`
}

// decodeProduct reads a product that may be populated (an object) or a bare id.
func decodeProduct(raw json.RawMessage) (ref *domain.ProductRef, id string) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, ""
	}
	if strings.HasPrefix(trimmed, "{") {
		var p domain.ProductRef
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, p.ID
		}
		return nil, ""
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, ""
	}
	return nil, id
}

func (w wireItem) normalize() domain.CartItem {
	ref, rawID := decodeProduct(w.Product)
	item := domain.CartItem{
		ProductID:  w.ProductID,
		VariantKey: w.VariantSku,
		Quantity:   w.Quantity,
		UnitPrice:  w.PriceAtAdd,
		Product:    ref,
		Variant:    w.Variant,
	}
	if item.ProductID == "" {
		item.ProductID = rawID
	}
	if item.Variant != nil && item.Variant.Attributes == nil {
		item.Variant.Attributes = map[string]any{}
	}
	item.Normalize()
	return item
}

func normalizeItems(in []wireItem) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(in))
	for _, w := range in {
		items = append(items, w.normalize())
	}
	return items
}

func (w wireCart) normalize() domain.Cart {
	cart := domain.Cart{Items: normalizeItems(w.Items)}
	cart.Recalculate()
	return cart
}

type AddItemRequest struct {
	ProductID  string
	VariantKey string
	UnitPrice  decimal.Decimal
	Quantity   int
}

type MergeResult struct {
	Cart domain.Cart
	// Rejected lists the guest lines the backend refused, e.g. out of stock.
	Rejected []domain.CartItem
}

func (s *Session) cartCall(ctx context.Context, method, path string, in any) (domain.Cart, error) {
	var out envelope[wireCart]
	if err := s.do(ctx, method, path, in, &out); err != nil {
		return domain.Cart{}, err
	}
	if out.Success != nil && !*out.Success {
		return domain.Cart{}, &APIError{Status: http.StatusOK, Message: out.Message}
	}
	return out.Data.normalize(), nil
}

func (s *Session) CurrentCart(ctx context.Context) (domain.Cart, error) {
	return s.cartCall(ctx, http.MethodGet, "carts/cart-current", nil)
}

func (s *Session) AddToCart(ctx context.Context, req AddItemRequest) (domain.Cart, error) {
	return s.cartCall(ctx, http.MethodPost, "carts/cart-add", map[string]any{
		"productId":  req.ProductID,
		"variantSku": req.VariantKey,
		"unitPrice":  req.UnitPrice.InexactFloat64(),
		"quantity":   req.Quantity,
	})
}

func (s *Session) UpdateCartItem(ctx context.Context, productID, variantKey string, quantity int) (domain.Cart, error) {
	return s.cartCall(ctx, http.MethodPost, "carts/cart-update", map[string]any{
		"productId":  productID,
		"variantSku": variantKey,
		"quantity":   quantity,
	})
}

func (s *Session) RemoveFromCart(ctx context.Context, productID, variantKey string) (domain.Cart, error) {
	return s.cartCall(ctx, http.MethodPost, "carts/cart-remove", map[string]any{
		"productId":  productID,
		"variantSku": variantKey,
	})
}

func (s *Session) ClearCart(ctx context.Context) error {
	return s.do(ctx, http.MethodPost, "carts/cart-clear", struct{}{}, nil)
}

// MergeGuestCart folds guest lines into the account cart.
func (s *Session) MergeGuestCart(ctx context.Context, items []domain.CartItem) (MergeResult, error) {
	type guestLine struct {
		ProductID  string  `json:"productId"`
		VariantSku string  `json:"variantSku"`
		Quantity   int     `json:"quantity"`
		PriceAtAdd float64 `json:"priceAtAdd"`
	}
	lines := make([]guestLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, guestLine{
			ProductID:  item.ProductID,
			VariantSku: item.VariantKey,
			Quantity:   item.Quantity,
			PriceAtAdd: item.UnitPrice.InexactFloat64(),
		})
	}

	var out envelope[wireCart]
	if err := s.do(ctx, http.MethodPost, "carts/cart-merge", map[string]any{"guestCartItems": lines}, &out); err != nil {
		return MergeResult{}, err
	}
	if out.Success != nil && !*out.Success {
		return MergeResult{}, &APIError{Status: http.StatusOK, Message: out.Message}
	}

	return MergeResult{
		Cart:     out.Data.normalize(),
		Rejected: normalizeItems(out.Data.RejectedItems),
	}, nil
}

func (s *Session) CartCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := s.do(ctx, http.MethodGet, "carts/cart-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
