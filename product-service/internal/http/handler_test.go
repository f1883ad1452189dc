package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cartwheel/storefront/product-service/internal/domain"
	"github.com/cartwheel/storefront/product-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type repoMock struct {
	products []*domain.Product
	err      error

	lastCategory string
	lastIDs      []int64
}

func (m *repoMock) GetAllProducts(_ context.Context, category string) ([]*domain.Product, error) {
	m.lastCategory = category
	return m.products, m.err
}

func (m *repoMock) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *repoMock) GetProductsByIDs(_ context.Context, ids []int64) ([]*domain.Product, error) {
	m.lastIDs = ids
	return m.products, m.err
}

func newRouter(repo *repoMock) http.Handler {
	r := chi.NewRouter()
	NewProductHandler(repo, 5*time.Second, zap.NewNop()).Routes(r)
	return r
}

func sampleProducts() []*domain.Product {
	return []*domain.Product{
		{ID: 1, Title: "Canvas Tote", Price: decimal.RequireFromString("25.00"), StockQuantity: 4},
		{ID: 2, Title: "Enamel Mug", Price: decimal.RequireFromString("12.50"), StockQuantity: 9},
	}
}

func TestList_Success(t *testing.T) {
	repo := &repoMock{products: sampleProducts()}
	rec := httptest.NewRecorder()

	newRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?category=bags", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ProductsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Products, 2)
	assert.Equal(t, "bags", repo.lastCategory)
	assert.Equal(t, "25", resp.Products[0].Price.String())
}

func TestList_ByIDs(t *testing.T) {
	repo := &repoMock{products: sampleProducts()}
	rec := httptest.NewRecorder()

	newRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?ids=1,%202", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, repo.lastIDs)
}

func TestList_InvalidIDs(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&repoMock{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?ids=1,abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestList_RepoError(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&repoMock{err: errors.New("disk gone")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestList_EmptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&repoMock{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"products":[]}`, rec.Body.String())
}

func TestGet(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/products/2", http.StatusOK},
		{"missing", "/products/7", http.StatusNotFound},
		{"bad id", "/products/zero", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(&repoMock{products: sampleProducts()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("3,1")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, ids)

	_, err = parseIDs("-1")
	assert.Error(t, err)
}
