package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cartwheel/storefront/orders-service/internal/cartclient"
	"github.com/cartwheel/storefront/orders-service/internal/domain"
	"github.com/cartwheel/storefront/orders-service/internal/repository"
	"github.com/cartwheel/storefront/pkg/events"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/cartwheel/storefront/pkg/orderstatus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const recentOrders = 5

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrUnavailableProduct = errors.New("cart contains unavailable products")
	ErrCartDown           = cartclient.ErrUnavailable
	ErrOrderNotFound      = repository.ErrOrderNotFound
	ErrStatusConflict     = repository.ErrStatusConflict
)

// IllegalTransitionError is returned when the requested status is not
// reachable from the order's current one.
type IllegalTransitionError struct {
	From orderstatus.Status
	To   orderstatus.Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

type CartReader interface {
	GetCart(ctx context.Context, owner string) ([]cartclient.CartLine, error)
}

type CreateOrderInput struct {
	CartOwner       string
	IdempotencyKey  string
	CustomerEmail   string
	PaymentMethod   string
	ShippingAddress string
	BillingAddress  string
	OrderNotes      string
}

type BulkFailure struct {
	OrderID int64  `json:"order_id"`
	Error   string `json:"error"`
}

type BulkResult struct {
	UpdatedCount int           `json:"updated_count"`
	Failed       []BulkFailure `json:"failed"`
}

type OrderService struct {
	repo  repository.OrderRepository
	carts CartReader
	log   *zap.Logger
	now   func() time.Time
}

func NewOrderService(repo repository.OrderRepository, carts CartReader, log *zap.Logger) *OrderService {
	return &OrderService{repo: repo, carts: carts, log: log, now: time.Now}
}

// CreateOrder turns the owner's current server cart into a pending order.
// A repeated idempotency key returns the order created the first time and
// created=false. The cart itself is left alone; clearing it is the caller's
// job, with the OrderCreated event as a backstop.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (order *domain.Order, created bool, err error) {
	log := logger.WithContext(ctx, s.log)

	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.NewString()
	} else {
		existing, err := s.repo.GetOrderByIdempotencyKey(ctx, in.IdempotencyKey)
		if err == nil {
			log.Info("idempotent order replay", zap.Int64("order_id", existing.ID))
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, false, err
		}
	}

	lines, err := s.carts.GetCart(ctx, in.CartOwner)
	if err != nil {
		return nil, false, err
	}
	if len(lines) == 0 {
		return nil, false, ErrEmptyCart
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, l := range lines {
		if l.Product.Title == "" || l.Quantity < 1 {
			return nil, false, fmt.Errorf("%w: product %d", ErrUnavailableProduct, l.Product.ID)
		}
		items = append(items, domain.NewOrderItem(l.Product.ID, l.Product.Title, l.Product.ImageURL, l.Product.Price, l.Quantity))
	}

	billing := in.BillingAddress
	if billing == "" {
		billing = in.ShippingAddress
	}
	order = &domain.Order{
		CartOwner:       in.CartOwner,
		IdempotencyKey:  in.IdempotencyKey,
		CustomerEmail:   in.CustomerEmail,
		Status:          orderstatus.Pending,
		Items:           items,
		TotalPrice:      domain.SumItems(items),
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   in.PaymentMethod,
		OrderNotes:      in.OrderNotes,
	}

	err = s.repo.CreateOrder(ctx, order, s.orderCreatedEvent)
	if errors.Is(err, repository.ErrDuplicateCheckout) {
		// lost a race with a retry carrying the same key
		existing, getErr := s.repo.GetOrderByIdempotencyKey(ctx, in.IdempotencyKey)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.TotalPrice.StringFixed(2)),
		zap.Int("items", order.ItemCount()))
	return order, true, nil
}

func (s *OrderService) ListOrders(ctx context.Context, status orderstatus.Status, page, perPage int) ([]*domain.Order, int, error) {
	return s.repo.ListOrders(ctx, repository.ListFilter{
		Status: status,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

// TransitionStatus validates the move against the status graph and applies
// it conditionally, so a concurrent change surfaces as ErrStatusConflict.
func (s *OrderService) TransitionStatus(ctx context.Context, id int64, to orderstatus.Status) (*domain.Order, error) {
	current, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !orderstatus.CanTransition(current.Status, to) {
		return nil, &IllegalTransitionError{From: current.Status, To: to}
	}

	from := current.Status
	updated, err := s.repo.UpdateStatus(ctx, id, from, to, func(o *domain.Order) (*repository.OutboxEvent, error) {
		return s.statusChangedEvent(o, from)
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("order status changed",
		zap.Int64("order_id", id),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	return updated, nil
}

func (s *OrderService) UpdateDetails(ctx context.Context, id int64, upd repository.DetailsUpdate) (*domain.Order, error) {
	return s.repo.UpdateDetails(ctx, id, upd)
}

// BulkTransition applies the same transition to each order independently.
// One failure does not stop the rest.
func (s *OrderService) BulkTransition(ctx context.Context, ids []int64, to orderstatus.Status) *BulkResult {
	res := &BulkResult{Failed: []BulkFailure{}}
	for _, id := range ids {
		if _, err := s.TransitionStatus(ctx, id, to); err != nil {
			res.Failed = append(res.Failed, BulkFailure{OrderID: id, Error: err.Error()})
			continue
		}
		res.UpdatedCount++
	}
	return res
}

func (s *OrderService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.repo.Stats(ctx, recentOrders)
}

func (s *OrderService) orderCreatedEvent(o *domain.Order) (*repository.OutboxEvent, error) {
	payload, err := json.Marshal(events.OrderCreated{
		OrderID:       o.ID,
		CartOwner:     o.CartOwner,
		CustomerEmail: o.CustomerEmail,
		TotalPrice:    o.TotalPrice,
		ItemCount:     o.ItemCount(),
		CreatedAt:     o.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return &repository.OutboxEvent{
		AggregateID: strconv.FormatInt(o.ID, 10),
		EventType:   events.TypeOrderCreated,
		Payload:     payload,
	}, nil
}

func (s *OrderService) statusChangedEvent(o *domain.Order, from orderstatus.Status) (*repository.OutboxEvent, error) {
	payload, err := json.Marshal(events.OrderStatusChanged{
		OrderID:   o.ID,
		From:      string(from),
		To:        string(o.Status),
		ChangedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &repository.OutboxEvent{
		AggregateID: strconv.FormatInt(o.ID, 10),
		EventType:   events.TypeOrderStatusChanged,
		Payload:     payload,
	}, nil
}
