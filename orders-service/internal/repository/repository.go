package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cartwheel/storefront/orders-service/internal/domain"
	"github.com/cartwheel/storefront/pkg/orderstatus"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateCheckout = errors.New("order for this idempotency key already exists")
	// ErrStatusConflict means the order left the expected status between
	// read and write.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type ListFilter struct {
	Status orderstatus.Status // empty means any
	Limit  int
	Offset int
}

// DetailsUpdate carries the admin-editable fields. Nil fields are left alone.
type DetailsUpdate struct {
	OrderNotes     *string
	TrackingNumber *string
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// EventBuilder renders the outbox row for an order once the row exists and
// its id is known. It runs inside the write transaction.
type EventBuilder func(o *domain.Order) (*OutboxEvent, error)

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order, event EventBuilder) error
	GetOrderByID(ctx context.Context, id int64) (*domain.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]*domain.Order, int, error)
	UpdateStatus(ctx context.Context, id int64, from, to orderstatus.Status, event EventBuilder) (*domain.Order, error)
	UpdateDetails(ctx context.Context, id int64, upd DetailsUpdate) (*domain.Order, error)
	Stats(ctx context.Context, recent int) (*domain.Stats, error)
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	PurgeProcessedEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}
