package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cartwheel/storefront/orders-service/internal/domain"
	"github.com/cartwheel/storefront/orders-service/internal/repository"
	"github.com/cartwheel/storefront/orders-service/internal/service"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/cartwheel/storefront/pkg/orderstatus"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	defaultPayment = "credit_card"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*domain.Order, bool, error)
	ListOrders(ctx context.Context, status orderstatus.Status, page, perPage int) ([]*domain.Order, int, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	TransitionStatus(ctx context.Context, id int64, to orderstatus.Status) (*domain.Order, error)
	UpdateDetails(ctx context.Context, id int64, upd repository.DetailsUpdate) (*domain.Order, error)
	BulkTransition(ctx context.Context, ids []int64, to orderstatus.Status) *service.BulkResult
	Stats(ctx context.Context) (*domain.Stats, error)
}

type OrderHandler struct {
	svc     OrderService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrderHandler(svc OrderService, timeout time.Duration, log *zap.Logger) *OrderHandler {
	return &OrderHandler{
		svc:     svc,
		timeout: timeout,
		log:     log,
	}
}

type CreateOrderRequestDTO struct {
	CustomerEmail   string `json:"customer_email" validate:"required,email"`
	PaymentMethod   string `json:"payment_method" validate:"omitempty,oneof=credit_card paypal apple_pay"`
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
	BillingAddress  string `json:"billing_address" validate:"max=500"`
	OrderNotes      string `json:"order_notes" validate:"max=1000"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status" validate:"required"`
}

type UpdateDetailsRequestDTO struct {
	OrderNotes     *string `json:"order_notes" validate:"omitempty,max=1000"`
	TrackingNumber *string `json:"tracking_number" validate:"omitempty,max=100"`
}

type BulkStatusRequestDTO struct {
	OrderIDs []int64 `json:"order_ids" validate:"required,min=1,max=100,dive,gt=0"`
	Status   string  `json:"status" validate:"required"`
}

type ListOrdersResponse struct {
	Orders  []*domain.Order `json:"orders"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

func (h *OrderHandler) Routes(r chi.Router) {
	r.With(requireOwner).Post("/orders", h.CreateOrder)

	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/", h.ListOrders)
		r.Get("/stats", h.Stats)
		r.Post("/bulk-status", h.BulkStatus)
		r.Get("/{orderID}", h.GetOrder)
		r.Patch("/{orderID}", h.UpdateDetails)
		r.Put("/{orderID}/status", h.UpdateStatus)
	})
}

func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(httpx.HeaderCartOwner) == "" {
			httpx.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin trusts the role the gateway stamped after validating the token.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(httpx.HeaderUserRole) != httpx.RoleAdmin {
			httpx.RespondError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request",
			"customer_email and shipping_address are required", err.Error())
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = defaultPayment
	}

	order, created, err := h.svc.CreateOrder(ctx, service.CreateOrderInput{
		CartOwner:       r.Header.Get(httpx.HeaderCartOwner),
		IdempotencyKey:  r.Header.Get(httpx.HeaderIdempotencyKey),
		CustomerEmail:   req.CustomerEmail,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		OrderNotes:      req.OrderNotes,
	})
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	httpx.RespondJSON(w, status, order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	var status orderstatus.Status
	if raw := q.Get("status"); raw != "" {
		s, err := orderstatus.Parse(raw)
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		status = s
	}
	page := queryInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage := min(queryInt(q.Get("per_page"), defaultPerPage), maxPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}

	orders, total, err := h.svc.ListOrders(ctx, status, page, perPage)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, ListOrdersResponse{
		Orders:  orders,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(ctx, id)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request", "status is required", err.Error())
		return
	}
	to, err := orderstatus.Parse(req.Status)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	order, err := h.svc.TransitionStatus(ctx, id, to)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req UpdateDetailsRequestDTO
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request", "invalid order details", err.Error())
		return
	}

	order, err := h.svc.UpdateDetails(ctx, id, repository.DetailsUpdate{
		OrderNotes:     req.OrderNotes,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req BulkStatusRequestDTO
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondErrorDetails(w, http.StatusBadRequest, "invalid_request",
			"order_ids and status are required", err.Error())
		return
	}
	to, err := orderstatus.Parse(req.Status)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	httpx.RespondJSON(w, http.StatusOK, h.svc.BulkTransition(ctx, req.OrderIDs, to))
}

func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		h.handleServiceError(ctx, w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, stats)
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_order_id", "invalid order id")
		return 0, false
	}
	return id, true
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (h *OrderHandler) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var illegal *service.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		httpx.RespondError(w, http.StatusConflict, "illegal_transition", illegal.Error())
	case errors.Is(err, service.ErrStatusConflict):
		httpx.RespondError(w, http.StatusConflict, "status_conflict", "order status changed, reload and retry")
	case errors.Is(err, service.ErrOrderNotFound):
		httpx.RespondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, service.ErrEmptyCart):
		httpx.RespondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, service.ErrUnavailableProduct):
		httpx.RespondError(w, http.StatusBadRequest, "unavailable_product", err.Error())
	case errors.Is(err, service.ErrCartDown):
		httpx.RespondError(w, http.StatusServiceUnavailable, "service_unavailable", "cart unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.RespondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.WithContext(ctx, h.log).Error("order request failed", zap.Error(err))
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
