package storefront

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/cartwheel/storefront/pkg/orderstatus"
	"go.uber.org/zap"
)

const refreshPageSize = 100

// AdminOrderService is the admin half of the orders API. *Client satisfies it.
type AdminOrderService interface {
	ListOrders(ctx context.Context, opts ListOptions) (*OrderPage, error)
	GetOrder(ctx context.Context, id int64) (*Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status orderstatus.Status) (*Order, error)
	UpdateOrderDetails(ctx context.Context, id int64, upd DetailsUpdate) (*Order, error)
	BulkUpdateStatus(ctx context.Context, ids []int64, status orderstatus.Status) (*BulkResult, error)
	OrderStats(ctx context.Context) (*Stats, error)
}

// OrderFilter narrows the cached order list. Empty fields match everything.
type OrderFilter struct {
	Search string
	Status orderstatus.Status
}

// Match is true when the id or the customer email contains Search
// (case-insensitive) and the status equals Status.
func (f OrderFilter) Match(o Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Search == "" {
		return true
	}
	term := strings.ToLower(f.Search)
	return strings.Contains(strconv.FormatInt(o.ID, 10), term) ||
		strings.Contains(strings.ToLower(o.CustomerEmail), term)
}

// FilterOrders returns the orders f matches, in input order.
func FilterOrders(orders []Order, f OrderFilter) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	return out
}

// OrderLifecycle backs the admin console: a cached order list, the order
// currently on display, and server-authorized status changes.
type OrderLifecycle struct {
	svc AdminOrderService
	log *zap.Logger

	mu     sync.RWMutex
	orders []Order
	detail *Order
}

func NewOrderLifecycle(svc AdminOrderService, log *zap.Logger) *OrderLifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderLifecycle{svc: svc, log: log.Named("orders")}
}

// Refresh reloads every order into the cache. The cache is replaced only
// when all pages arrived.
func (l *OrderLifecycle) Refresh(ctx context.Context) error {
	var all []Order
	for page := 1; ; page++ {
		res, err := l.svc.ListOrders(ctx, ListOptions{Page: page, PerPage: refreshPageSize})
		if err != nil {
			logger.WithContext(ctx, l.log).Warn("refresh orders failed", zap.Int("page", page), zap.Error(err))
			return err
		}
		all = append(all, res.Orders...)
		if len(res.Orders) < refreshPageSize || len(all) >= res.Total {
			break
		}
	}

	l.mu.Lock()
	l.orders = all
	l.mu.Unlock()
	return nil
}

// Orders returns a copy of the cache.
func (l *OrderLifecycle) Orders() []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := slices.Clone(l.orders)
	if out == nil {
		out = []Order{}
	}
	return out
}

func (l *OrderLifecycle) ListOrders(f OrderFilter) []Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return FilterOrders(l.orders, f)
}

// OrderDetail loads one order and makes it the displayed detail.
func (l *OrderLifecycle) OrderDetail(ctx context.Context, id int64) (*Order, error) {
	order, err := l.svc.GetOrder(ctx, id)
	if err != nil {
		logger.WithContext(ctx, l.log).Warn("load order failed", zap.Int64("order_id", id), zap.Error(err))
		return nil, err
	}
	l.mu.Lock()
	l.detail = order
	l.mu.Unlock()
	return cloneOrder(order), nil
}

// Detail is the displayed order, or nil.
func (l *OrderLifecycle) Detail() *Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneOrder(l.detail)
}

// CloseDetail clears the displayed order.
func (l *OrderLifecycle) CloseDetail() {
	l.mu.Lock()
	l.detail = nil
	l.mu.Unlock()
}

// TransitionStatus asks the server to move an order to status. The local
// graph is not consulted; the server decides. On success the cached entry
// and the displayed detail take the server's copy. On failure nothing
// changes.
func (l *OrderLifecycle) TransitionStatus(ctx context.Context, id int64, status orderstatus.Status) error {
	updated, err := l.svc.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		logger.WithContext(ctx, l.log).Warn("status change rejected",
			zap.Int64("order_id", id), zap.Stringer("to", status), zap.Error(err))
		return err
	}
	logger.WithContext(ctx, l.log).Info("order status changed",
		zap.Int64("order_id", id), zap.Stringer("to", updated.Status))
	l.store(updated)
	return nil
}

// AvailableTransitions lists the statuses the UI may offer from status.
func (l *OrderLifecycle) AvailableTransitions(status orderstatus.Status) []orderstatus.Status {
	return orderstatus.Allowed(status)
}

// UpdateNotes edits notes and tracking number. Nil leaves a field as is.
func (l *OrderLifecycle) UpdateNotes(ctx context.Context, id int64, notes, tracking *string) error {
	updated, err := l.svc.UpdateOrderDetails(ctx, id, DetailsUpdate{OrderNotes: notes, TrackingNumber: tracking})
	if err != nil {
		logger.WithContext(ctx, l.log).Warn("update order details failed", zap.Int64("order_id", id), zap.Error(err))
		return err
	}
	l.store(updated)
	return nil
}

// BulkTransition moves several orders at once. The server reports per-order
// failures; orders it updated are refreshed in the cache one by one.
func (l *OrderLifecycle) BulkTransition(ctx context.Context, ids []int64, status orderstatus.Status) (*BulkResult, error) {
	res, err := l.svc.BulkUpdateStatus(ctx, ids, status)
	if err != nil {
		logger.WithContext(ctx, l.log).Warn("bulk status change failed", zap.Error(err))
		return nil, err
	}

	failed := make(map[int64]bool, len(res.Failed))
	for _, f := range res.Failed {
		failed[f.OrderID] = true
	}
	for _, id := range ids {
		if failed[id] {
			continue
		}
		l.setStatus(id, status)
	}
	return res, nil
}

func (l *OrderLifecycle) Stats(ctx context.Context) (*Stats, error) {
	return l.svc.OrderStats(ctx)
}

func (l *OrderLifecycle) store(o *Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.orders {
		if l.orders[i].ID == o.ID {
			l.orders[i] = *cloneOrder(o)
			break
		}
	}
	if l.detail != nil && l.detail.ID == o.ID {
		l.detail = cloneOrder(o)
	}
}

func (l *OrderLifecycle) setStatus(id int64, status orderstatus.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.orders {
		if l.orders[i].ID == id {
			l.orders[i].Status = status
			break
		}
	}
	if l.detail != nil && l.detail.ID == id {
		l.detail.Status = status
	}
}

func cloneOrder(o *Order) *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}
