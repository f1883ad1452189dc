package storefront

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService is the remote cart the store mirrors. *Client satisfies it.
type CartService interface {
	GetCart(ctx context.Context) ([]CartItem, error)
	AddItem(ctx context.Context, productID int64, quantity int) (*CartItem, error)
	UpdateItem(ctx context.Context, itemID string, quantity int) (*CartItem, error)
	RemoveItem(ctx context.Context, itemID string) error
	ClearCart(ctx context.Context) error
}

// CartStore holds the client's snapshot of the server cart. Every mutation
// goes to the server first and is followed by a full refetch; the snapshot
// is never patched speculatively.
//
// Mutations run one at a time. Each fetch takes a sequence number when it
// starts, and a response is applied only if nothing newer has been applied
// already, so a slow fetch cannot overwrite fresher state.
type CartStore struct {
	svc CartService
	log *zap.Logger

	mutation sync.Mutex

	mu      sync.RWMutex
	items   []CartItem
	applied uint64

	seq atomic.Uint64
}

func NewCartStore(svc CartService, log *zap.Logger) *CartStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartStore{svc: svc, log: log.Named("cart")}
}

// FetchCart replaces the snapshot with the server's cart. On error the
// snapshot is left as it was.
func (s *CartStore) FetchCart(ctx context.Context) error {
	seq := s.seq.Add(1)
	items, err := s.svc.GetCart(ctx)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("fetch cart failed", zap.Error(err))
		return err
	}
	if !s.apply(seq, items) {
		logger.WithContext(ctx, s.log).Debug("discarded stale cart response", zap.Uint64("seq", seq))
	}
	return nil
}

func (s *CartStore) AddToCart(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	s.mutation.Lock()
	defer s.mutation.Unlock()

	if _, err := s.svc.AddItem(ctx, productID, quantity); err != nil {
		logger.WithContext(ctx, s.log).Warn("add to cart failed",
			zap.Int64("product_id", productID), zap.Error(err))
		return err
	}
	s.refetch(ctx)
	return nil
}

// UpdateCartItem sets an item's quantity. The item must be in the current
// snapshot. Non-positive quantities are sent as is and left for the server
// to reject.
func (s *CartStore) UpdateCartItem(ctx context.Context, itemID string, quantity int) error {
	s.mutation.Lock()
	defer s.mutation.Unlock()

	// under the guard, so no removal lands between the check and the request
	if !s.contains(itemID) {
		return ErrItemNotInCart
	}

	if _, err := s.svc.UpdateItem(ctx, itemID, quantity); err != nil {
		logger.WithContext(ctx, s.log).Warn("update cart item failed",
			zap.String("item_id", itemID), zap.Error(err))
		return err
	}
	s.refetch(ctx)
	return nil
}

func (s *CartStore) RemoveFromCart(ctx context.Context, itemID string) error {
	s.mutation.Lock()
	defer s.mutation.Unlock()

	if err := s.svc.RemoveItem(ctx, itemID); err != nil {
		logger.WithContext(ctx, s.log).Warn("remove from cart failed",
			zap.String("item_id", itemID), zap.Error(err))
		return err
	}
	s.refetch(ctx)
	return nil
}

// ClearCart empties the server cart, then the snapshot. It does not refetch.
func (s *CartStore) ClearCart(ctx context.Context) error {
	s.mutation.Lock()
	defer s.mutation.Unlock()

	if err := s.svc.ClearCart(ctx); err != nil {
		logger.WithContext(ctx, s.log).Warn("clear cart failed", zap.Error(err))
		return err
	}
	// a fresh sequence number fences off fetches started before the clear
	s.apply(s.seq.Add(1), nil)
	return nil
}

// refetch runs after a successful mutation. Its failure is logged only; the
// mutation itself already happened.
func (s *CartStore) refetch(ctx context.Context) {
	if err := s.FetchCart(ctx); err != nil {
		logger.WithContext(ctx, s.log).Warn("refetch after mutation failed", zap.Error(err))
	}
}

func (s *CartStore) apply(seq uint64, items []CartItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		return false
	}
	s.applied = seq
	s.items = slices.Clone(items)
	return true
}

func (s *CartStore) contains(itemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.ContainsFunc(s.items, func(it CartItem) bool { return it.ID == itemID })
}

// Items returns a copy of the snapshot.
func (s *CartStore) Items() []CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.items)
	if out == nil {
		out = []CartItem{}
	}
	return out
}

func (s *CartStore) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0
}

// CartTotal is Σ price × quantity over the snapshot.
func (s *CartStore) CartTotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// CartItemCount is Σ quantity over the snapshot.
func (s *CartStore) CartItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}
