package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog snapshot embedded in cart lines.
type Product struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	Category      string          `json:"category"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (p *Product) InStock(quantity int) bool {
	return quantity <= p.StockQuantity
}
