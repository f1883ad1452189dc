package storefront

import (
	"time"

	"github.com/cartwheel/storefront/pkg/orderstatus"
	"github.com/shopspring/decimal"
)

// Product is the catalog snapshot embedded in cart items.
type Product struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	Category      string          `json:"category"`
	StockQuantity int             `json:"stock_quantity"`
}

type CartItem struct {
	ID       string  `json:"id"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// LineTotal is price × quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID              int64              `json:"id"`
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

type OrderRequest struct {
	CustomerEmail   string `json:"customer_email"`
	PaymentMethod   string `json:"payment_method"`
	ShippingAddress string `json:"shipping_address"`
	BillingAddress  string `json:"billing_address"`
	OrderNotes      string `json:"order_notes,omitempty"`
}

type ListOptions struct {
	Status  orderstatus.Status
	Page    int
	PerPage int
}

type OrderPage struct {
	Orders  []Order `json:"orders"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// DetailsUpdate edits notes and tracking. Nil fields are left unchanged.
type DetailsUpdate struct {
	OrderNotes     *string `json:"order_notes,omitempty"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
}

type BulkFailure struct {
	OrderID int64  `json:"order_id"`
	Error   string `json:"error"`
}

type BulkResult struct {
	UpdatedCount int           `json:"updated_count"`
	Failed       []BulkFailure `json:"failed"`
}

type Stats struct {
	TotalOrders  int                        `json:"total_orders"`
	TotalRevenue decimal.Decimal            `json:"total_revenue"`
	StatusCounts map[orderstatus.Status]int `json:"status_counts"`
	RecentOrders []Order                    `json:"recent_orders"`
}
