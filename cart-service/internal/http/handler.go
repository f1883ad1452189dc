package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cartwheel/storefront/cart-service/internal/domain"
	"github.com/cartwheel/storefront/cart-service/internal/repository"
	"github.com/cartwheel/storefront/cart-service/internal/service"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	GetCartLines(ctx context.Context, owner string) ([]domain.CartLine, error)
	AddItem(ctx context.Context, owner string, productID int64, quantity int) (*domain.CartLine, error)
	UpdateQuantity(ctx context.Context, owner, itemID string, quantity int) (*domain.CartLine, error)
	RemoveItem(ctx context.Context, owner, itemID string) error
	ClearCart(ctx context.Context, owner string) error
}

type CartHandler struct {
	svc     CartService
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(svc CartService, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{
		svc:     svc,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=1,lte=99"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity" validate:"gte=1,lte=99"`
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Use(requireOwner)
		r.Get("/", h.GetCart)
		r.Post("/", h.AddItem)
		r.Delete("/clear", h.ClearCart)
		r.Put("/{itemID}", h.UpdateQuantity)
		r.Delete("/{itemID}", h.RemoveItem)
	})
}

// requireOwner rejects requests the gateway did not stamp with a cart owner.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(httpx.HeaderCartOwner) == "" {
			httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func owner(r *http.Request) string {
	return r.Header.Get(httpx.HeaderCartOwner)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	lines, err := h.svc.GetCartLines(ctx, owner(r))
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, lines)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request",
			"product_id must be positive and quantity between 1 and 99", err.Error())
		return
	}

	line, err := h.svc.AddItem(ctx, owner(r), req.ProductID, req.Quantity)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusCreated, line)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_quantity",
			"quantity must be between 1 and 99", err.Error())
		return
	}

	line, err := h.svc.UpdateQuantity(ctx, owner(r), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, line)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.svc.RemoveItem(ctx, owner(r), chi.URLParam(r, "itemID")); err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.svc.ClearCart(ctx, owner(r)); err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrItemNotFound):
		httpx.RespondError(w, http.StatusNotFound, "item_not_found", "item not found in cart")
	case errors.Is(err, service.ErrProductNotFound):
		httpx.RespondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, service.ErrInsufficientStock):
		httpx.RespondError(w, http.StatusBadRequest, "insufficient_stock", "insufficient stock")
	case errors.Is(err, service.ErrCatalogDown):
		httpx.RespondError(w, http.StatusServiceUnavailable, "service_unavailable", "catalog unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.WithContext(ctx, h.log).Error("cart request failed", zap.Error(err))
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
