// Package events defines the order events published through the orders
// outbox and consumed by the cart service.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderEvents = "order-events"

	HeaderEventType = "event_type"

	TypeOrderCreated       = "OrderCreated"
	TypeOrderStatusChanged = "OrderStatusChanged"
)

type OrderCreated struct {
	OrderID       int64           `json:"order_id"`
	CartOwner     string          `json:"cart_owner"`
	CustomerEmail string          `json:"customer_email"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	ItemCount     int             `json:"item_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

type OrderStatusChanged struct {
	OrderID   int64     `json:"order_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}
