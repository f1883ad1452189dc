package cache

import (
	"context"
	"errors"

	"github.com/cartwheel/storefront/cart-service/internal/domain"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStale means the cart was invalidated after its generation was read.
	ErrStale = errors.New("cache fill is stale")
)

// CartCache is a read-through cache of carts keyed by owner. Delete bumps
// the owner's generation; Fill only writes if the generation it was given
// is still current, so a slow reader cannot cache a cart that a mutation
// already replaced.
type CartCache interface {
	Get(ctx context.Context, owner string) (*domain.Cart, error)
	Generation(ctx context.Context, owner string) (int64, error)
	Fill(ctx context.Context, owner string, cart *domain.Cart, gen int64) error
	Delete(ctx context.Context, owner string) error
}
