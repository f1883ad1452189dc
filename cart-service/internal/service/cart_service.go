package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cartwheel/storefront/cart-service/internal/cache"
	"github.com/cartwheel/storefront/cart-service/internal/catalog"
	"github.com/cartwheel/storefront/cart-service/internal/domain"
	"github.com/cartwheel/storefront/cart-service/internal/repository"
	"github.com/cartwheel/storefront/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = catalog.ErrProductNotFound
	ErrCatalogDown       = catalog.ErrUnavailable
)

// ProductCatalog is the slice of the catalog the cart needs.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog ProductCatalog
	log     *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, catalog ProductCatalog, log *zap.Logger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		log:     log,
	}
}

func (s *CartService) GetCart(ctx context.Context, owner string) (*domain.Cart, error) {
	log := logger.WithContext(ctx, s.log)

	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(owner, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, owner)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("cache get error", zap.Error(err))
		}

		// read the generation before the store so an invalidation that
		// lands in between makes the fill below a no-op
		gen, errGen := s.cache.Generation(ctx, owner)
		if errGen != nil {
			log.Warn("cache generation error", zap.Error(errGen))
		}

		cart, errGet := s.repo.GetCart(ctx, owner)
		if errors.Is(errGet, repository.ErrCartNotFound) {
			now := time.Now().UTC()
			return &domain.Cart{
				Owner:     owner,
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		if errGen == nil {
			go s.fillCache(owner, cart, gen)
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// GetCartLines returns the cart joined with current catalog snapshots, in
// the order items were added.
func (s *CartService) GetCartLines(ctx context.Context, owner string) ([]domain.CartLine, error) {
	cart, err := s.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return []domain.CartLine{}, nil
	}

	products, err := s.catalog.GetProducts(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(cart.Items))
	for _, it := range cart.Items {
		p, ok := products[it.ProductID]
		if !ok {
			logger.WithContext(ctx, s.log).Warn("cart references unknown product",
				zap.String("owner", owner),
				zap.Int64("product_id", it.ProductID),
			)
			p = domain.Product{ID: it.ProductID}
		}
		lines = append(lines, domain.CartLine{ID: it.ID, Product: p, Quantity: it.Quantity})
	}
	return lines, nil
}

// AddItem adds quantity of a product. An existing line for the same product
// is incremented, never beyond the product's stock.
func (s *CartService) AddItem(ctx context.Context, owner string, productID int64, quantity int) (*domain.CartLine, error) {
	log := logger.WithContext(ctx, s.log)

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !inStock(product, quantity) {
		return nil, ErrInsufficientStock
	}

	item, err := s.repo.AddItem(ctx, owner, productID, quantity, product.StockQuantity)
	if err != nil {
		log.Error("repo add item error", zap.Error(err))
		return nil, err
	}

	s.invalidateCache(owner)
	log.Info("item added to cart",
		zap.String("owner", owner),
		zap.Int64("product_id", productID),
		zap.Int("quantity", item.Quantity),
	)
	return &domain.CartLine{ID: item.ID, Product: *product, Quantity: item.Quantity}, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, owner, itemID string, quantity int) (*domain.CartLine, error) {
	log := logger.WithContext(ctx, s.log)

	cart, err := s.repo.GetCart(ctx, owner)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, repository.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	current, ok := cart.FindItem(itemID)
	if !ok {
		return nil, repository.ErrItemNotFound
	}

	product, err := s.catalog.GetProduct(ctx, current.ProductID)
	if err != nil {
		return nil, err
	}
	if !inStock(product, quantity) {
		return nil, ErrInsufficientStock
	}

	item, err := s.repo.UpdateItemQuantity(ctx, owner, itemID, quantity)
	if err != nil {
		log.Error("repo update item quantity error", zap.Error(err))
		return nil, err
	}

	s.invalidateCache(owner)
	return &domain.CartLine{ID: item.ID, Product: *product, Quantity: item.Quantity}, nil
}

func (s *CartService) RemoveItem(ctx context.Context, owner, itemID string) error {
	if err := s.repo.RemoveItem(ctx, owner, itemID); err != nil {
		if !errors.Is(err, repository.ErrItemNotFound) {
			logger.WithContext(ctx, s.log).Error("repo remove item error", zap.Error(err))
		}
		return err
	}

	s.invalidateCache(owner)
	return nil
}

// ClearCart succeeds on an already empty cart.
func (s *CartService) ClearCart(ctx context.Context, owner string) error {
	err := s.repo.DeleteCart(ctx, owner)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		logger.WithContext(ctx, s.log).Error("repo delete cart error", zap.Error(err))
		return err
	}

	s.invalidateCache(owner)
	return nil
}

func (s *CartService) fillCache(owner string, cart *domain.Cart, gen int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.cache.Fill(ctx, owner, cart, gen)
	switch {
	case errors.Is(err, cache.ErrStale):
		s.log.Debug("skipped stale cache fill", zap.String("owner", owner))
	case err != nil:
		s.log.Warn("cache fill error", zap.String("owner", owner), zap.Error(err))
	}
}

func (s *CartService) invalidateCache(owner string) {
	// reads issued after the write must not join a flight that started before it
	s.sfg.Forget(owner)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, owner); err != nil {
		s.log.Warn("cache invalidate error", zap.String("owner", owner), zap.Error(err))
	}
}

func inStock(p *domain.Product, quantity int) bool {
	return quantity <= p.StockQuantity
}
