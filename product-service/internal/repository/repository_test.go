package repository_test

import (
	"context"
	"testing"
	"time"

	db "github.com/cartwheel/storefront/product-service/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.Repository {
	// Use in-memory database for tests
	repo, err := db.NewRepository(":memory:")
	require.NoError(t, err)

	require.NoError(t, repo.RunMigrations())
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestGetAllProducts_Returns5AfterMigrations(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.GetAllProducts(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, products, 5) // the seed migration inserts 5 products
}

func TestGetAllProducts_FilterByCategory(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.GetAllProducts(context.Background(), "kitchen")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Enamel Mug", products[0].Title)
}

func TestGetAllProducts_WithContext(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*1)
	defer cancel()

	products, err := repo.GetAllProducts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, products, 5)
}

func TestGetAllProducts_CancelledContext(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetAllProducts(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetProduct_ReturnsProduct(t *testing.T) {
	repo := setupTestDB(t)

	product, err := repo.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Canvas Tote", product.Title)
	assert.True(t, decimal.RequireFromString("25.00").Equal(product.Price))
	assert.Equal(t, 40, product.StockQuantity)
}

func TestGetProduct_IncorrectId_ReturnsNotFound(t *testing.T) {
	repo := setupTestDB(t)

	product, err := repo.GetProduct(context.Background(), -1)
	assert.Nil(t, product)
	assert.ErrorIs(t, err, db.ErrProductNotFound)
}

func TestGetProductsByIDs(t *testing.T) {
	repo := setupTestDB(t)

	products, err := repo.GetProductsByIDs(context.Background(), []int64{5, 2, 99})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(2), products[0].ID)
	assert.Equal(t, int64(5), products[1].ID)

	none, err := repo.GetProductsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	repo := setupTestDB(t)
	assert.NoError(t, repo.RunMigrations())
}
