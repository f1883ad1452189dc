package repository

import (
	"context"

	"github.com/cartwheel/storefront/cart-service/internal/domain"
)

type CartRepository interface {
	GetCart(ctx context.Context, owner string) (*domain.Cart, error)
	// AddItem merges into an existing line for the product, capping the
	// resulting quantity at maxQuantity.
	AddItem(ctx context.Context, owner string, productID int64, quantity, maxQuantity int) (*domain.CartItem, error)
	UpdateItemQuantity(ctx context.Context, owner, itemID string, quantity int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, owner, itemID string) error
	DeleteCart(ctx context.Context, owner string) error
}
