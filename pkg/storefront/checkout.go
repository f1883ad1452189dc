package storefront

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	PaymentCreditCard = "credit_card"
	PaymentPayPal     = "paypal"
	PaymentApplePay   = "apple_pay"

	DefaultCountry = "US"
)

var taxRate = decimal.RequireFromString("0.08")

// OrderService places orders. *Client satisfies it.
type OrderService interface {
	CreateOrder(ctx context.Context, req OrderRequest, idempotencyKey string) (*Order, error)
}

// CustomerInfo is the checkout form.
type CustomerInfo struct {
	Email         string `json:"email" validate:"required,email"`
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Phone         string `json:"phone"`
	Street        string `json:"street" validate:"required"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required"`
	ZipCode       string `json:"zip_code" validate:"required"`
	Country       string `json:"country" validate:"required"`
	PaymentMethod string `json:"payment_method" validate:"oneof=credit_card paypal apple_pay"`
	CardName      string `json:"card_name" validate:"required_if=PaymentMethod credit_card"`
	CardNumber    string `json:"card_number" validate:"required_if=PaymentMethod credit_card"`
	ExpiryDate    string `json:"expiry_date" validate:"required_if=PaymentMethod credit_card"`
	CVV           string `json:"cvv" validate:"required_if=PaymentMethod credit_card"`
	Notes         string `json:"notes"`
}

// Address formats the single-line address the orders API stores.
func (c CustomerInfo) Address() string {
	return fmt.Sprintf("%s, %s, %s %s, %s", c.Street, c.City, c.State, c.ZipCode, c.Country)
}

type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// CheckoutResult is a placed order. Warning is set when the order went
// through but the cart could not be cleared afterwards.
type CheckoutResult struct {
	Order   *Order
	Warning string
}

type CheckoutCoordinator struct {
	cart     *CartStore
	orders   OrderService
	log      *zap.Logger
	validate *validator.Validate

	submitting atomic.Bool
}

func NewCheckoutCoordinator(cart *CartStore, orders OrderService, log *zap.Logger) *CheckoutCoordinator {
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &CheckoutCoordinator{cart: cart, orders: orders, log: log.Named("checkout"), validate: v}
}

// Totals is for display only. The server charges the plain item sum.
func (c *CheckoutCoordinator) Totals() Totals {
	sub := c.cart.CartTotal()
	tax := sub.Mul(taxRate)
	return Totals{
		Subtotal: sub.Round(2),
		Tax:      tax.Round(2),
		Shipping: decimal.Zero,
		Total:    sub.Add(tax).Round(2),
	}
}

// Submitting reports whether an order submission is running.
func (c *CheckoutCoordinator) Submitting() bool {
	return c.submitting.Load()
}

// SubmitOrder places an order for the current cart. The cart is cleared
// only after the server accepted the order.
func (c *CheckoutCoordinator) SubmitOrder(ctx context.Context, info CustomerInfo) (*CheckoutResult, error) {
	if c.cart.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if !c.submitting.CompareAndSwap(false, true) {
		return nil, ErrCheckoutInProgress
	}
	defer c.submitting.Store(false)

	if info.Country == "" {
		info.Country = DefaultCountry
	}
	if info.PaymentMethod == "" {
		info.PaymentMethod = PaymentCreditCard
	}
	if err := c.validateInfo(info); err != nil {
		return nil, err
	}

	addr := info.Address()
	req := OrderRequest{
		CustomerEmail:   info.Email,
		PaymentMethod:   info.PaymentMethod,
		ShippingAddress: addr,
		BillingAddress:  addr,
		OrderNotes:      info.Notes,
	}
	log := logger.WithContext(ctx, c.log)

	order, err := c.orders.CreateOrder(ctx, req, uuid.NewString())
	if err != nil {
		log.Warn("order rejected", zap.Error(err))
		return nil, err
	}
	log.Info("order placed", zap.Int64("order_id", order.ID), zap.String("total", order.TotalPrice.String()))

	res := &CheckoutResult{Order: order}
	if err := c.cart.ClearCart(ctx); err != nil {
		log.Warn("order placed but cart not cleared", zap.Int64("order_id", order.ID), zap.Error(err))
		res.Warning = fmt.Sprintf("order %d was placed but the cart could not be cleared: %v", order.ID, err)
	}
	return res, nil
}

func (c *CheckoutCoordinator) validateInfo(info CustomerInfo) error {
	err := c.validate.Struct(info)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}
