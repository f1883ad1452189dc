package domain

import (
	"time"

	"github.com/cartwheel/storefront/pkg/orderstatus"
	"github.com/shopspring/decimal"
)

// OrderItem is a cart line frozen at checkout, price included.
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func NewOrderItem(productID int64, title, imageURL string, unitPrice decimal.Decimal, quantity int) OrderItem {
	return OrderItem{
		ProductID: productID,
		Title:     title,
		ImageURL:  imageURL,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		LineTotal: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Order is immutable after creation except for status, notes, tracking
// number and the status timestamps.
type Order struct {
	ID              int64              `json:"id"`
	CartOwner       string             `json:"-"`
	IdempotencyKey  string             `json:"-"`
	CustomerEmail   string             `json:"customer_email"`
	Status          orderstatus.Status `json:"status"`
	Items           []OrderItem        `json:"items"`
	TotalPrice      decimal.Decimal    `json:"total_price"`
	ShippingAddress string             `json:"shipping_address"`
	BillingAddress  string             `json:"billing_address"`
	PaymentMethod   string             `json:"payment_method"`
	OrderNotes      string             `json:"order_notes"`
	TrackingNumber  string             `json:"tracking_number"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	ShippedAt       *time.Time         `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time         `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
}

func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal)
	}
	return total
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Stats backs the admin dashboard.
type Stats struct {
	TotalOrders  int                        `json:"total_orders"`
	TotalRevenue decimal.Decimal            `json:"total_revenue"`
	StatusCounts map[orderstatus.Status]int `json:"status_counts"`
	RecentOrders []*Order                   `json:"recent_orders"`
}
