package remote

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func (s *Session) Categories(ctx context.Context) ([]domain.Category, error) {
	var out envelope[[]domain.Category]
	if err := s.do(ctx, http.MethodGet, "category/get-categories", nil, &out); err != nil {
		return nil, err
	}
	if out.Success != nil && !*out.Success {
		msg := out.Message
		if msg == "" {
			msg = "failed to load categories"
		}
		return nil, &APIError{Status: http.StatusOK, Message: msg}
	}
	if out.Data == nil {
		return []domain.Category{}, nil
	}
	return out.Data, nil
}
