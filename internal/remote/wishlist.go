package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func (s *Session) Wishlist(ctx context.Context) ([]domain.ProductRef, error) {
	var out envelope[struct {
		Products []json.RawMessage `json:"products"`
	}]
	if err := s.do(ctx, http.MethodGet, "wishlist", nil, &out); err != nil {
		return nil, err
	}

	products := make([]domain.ProductRef, 0, len(out.Data.Products))
	for _, raw := range out.Data.Products {
		ref, id := decodeProduct(raw)
		switch {
		case ref != nil:
			products = append(products, *ref)
		case id != "":
			products = append(products, domain.ProductRef{ID: id, Title: domain.UnknownProductTitle})
		}
	}
	return products, nil
}

type ToggleResult struct {
	InWishlist bool
	// Action is "added" or "removed".
	Action string
}

func (s *Session) ToggleWishlist(ctx context.Context, productID string) (ToggleResult, error) {
	var out envelope[struct {
		IsInWishlist bool   `json:"isInWishlist"`
		Action       string `json:"action"`
	}]
	if err := s.do(ctx, http.MethodPost, "wishlist/toggle", map[string]string{"productId": productID}, &out); err != nil {
		return ToggleResult{}, err
	}
	return ToggleResult{InWishlist: out.Data.IsInWishlist, Action: out.Data.Action}, nil
}
