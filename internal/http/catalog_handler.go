package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CatalogHandler struct {
	store   *catalog.Store
	timeout time.Duration
}

func NewCatalogHandler(store *catalog.Store, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{store: store, timeout: timeout}
}

type CategoriesResponseDTO struct {
	Categories []domain.Category `json:"categories"`
}

func (h *CatalogHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.store.Categories(ctx)
	if err != nil {
		if ctx.Err() != nil {
			handleError(w, err, "Network error")
			return
		}
		respondError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	respondJSON(w, http.StatusOK, CategoriesResponseDTO{Categories: categories})
}
