package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/cartwheel/storefront/product-service/internal/domain"
	"github.com/cartwheel/storefront/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBatchIDs caps GET /products?ids=.
const maxBatchIDs = 100

type ProductHandler struct {
	repo    repository.RepoInterface
	timeout time.Duration
	log     *zap.Logger
}

func NewProductHandler(repo repository.RepoInterface, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		repo:    repo,
		timeout: timeout,
		log:     log,
	}
}

type ProductsResponse struct {
	Products []*domain.Product `json:"products"`
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/{id}", h.Get)
}

// List serves the whole catalog, one category, or an explicit id batch.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		products []*domain.Product
		err      error
	)
	if raw := r.URL.Query().Get("ids"); raw != "" {
		ids, perr := parseIDs(raw)
		if perr != nil {
			httpx.RespondError(w, http.StatusBadRequest, "invalid_ids", perr.Error())
			return
		}
		products, err = h.repo.GetProductsByIDs(ctx, ids)
	} else {
		products, err = h.repo.GetAllProducts(ctx, r.URL.Query().Get("category"))
	}
	if err != nil {
		logger.WithContext(ctx, h.log).Error("list products failed", zap.Error(err))
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch products")
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	httpx.RespondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be a positive integer")
		return
	}

	product, err := h.repo.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrProductNotFound) {
		httpx.RespondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	}
	if err != nil {
		logger.WithContext(ctx, h.log).Error("get product failed", zap.Int64("product_id", id), zap.Error(err))
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch product")
		return
	}

	httpx.RespondJSON(w, http.StatusOK, product)
}

func parseIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) > maxBatchIDs {
		return nil, errors.New("too many ids")
	}
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("ids must be positive integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
