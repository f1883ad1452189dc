package storefront

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cartwheel/storefront/pkg/circuitbreaker"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/orderstatus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_SessionIsRememberedAndSent(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get(httpx.HeaderSessionID))
		w.Header().Set(httpx.HeaderSessionID, "sess-1")
		httpx.RespondJSON(w, http.StatusOK, []CartItem{})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, zap.NewNop())

	_, err := c.GetCart(context.Background())
	require.NoError(t, err)
	_, err = c.GetCart(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "sess-1"}, seen)
	assert.Equal(t, "sess-1", c.SessionID())
}

func TestClient_SendsBearerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		httpx.RespondJSON(w, http.StatusOK, Stats{})
	}))
	defer srv.Close()
	c := NewClient(srv.URL, nil, WithToken("tok"), WithSessionID("ignored-by-server"))

	_, err := c.OrderStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
}

func TestClient_ApplicationErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		retryable bool
	}{
		{"server message", http.StatusConflict, `{"error":"cannot change order status from delivered to pending","code":"illegal_transition"}`, "cannot change order status from delivered to pending", false},
		{"no json body", http.StatusBadGateway, "upstream exploded", "Bad Gateway", true},
		{"empty error field", http.StatusNotFound, `{"code":"x"}`, "Not Found", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			c := NewClient(srv.URL, nil)

			_, err := c.GetOrder(context.Background(), 1)

			var appErr *ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.status, appErr.StatusCode)
			assert.Equal(t, tt.wantMsg, appErr.Message)
			assert.Equal(t, "get order", appErr.Op)
			assert.Equal(t, tt.retryable, appErr.Retryable())
		})
	}
}

func TestClient_UndecodableBodyIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{truncated"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).GetCart(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_OpenBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		httpx.RespondError(w, http.StatusServiceUnavailable, "unavailable", "down")
	}))
	defer srv.Close()
	cfg := circuitbreaker.DefaultConfig("test")
	cfg.ConsecutiveFails = 2
	cfg.Timeout = time.Minute
	c := NewClient(srv.URL, nil, WithBreaker(cfg))

	for range 2 {
		_, err := c.GetCart(context.Background())
		assert.True(t, IsStatus(err, http.StatusServiceUnavailable))
	}
	_, err := c.GetCart(context.Background())

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_ListOrdersQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		httpx.RespondJSON(w, http.StatusOK, OrderPage{Orders: []Order{}, Page: 2, PerPage: 50})
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL, nil).ListOrders(context.Background(),
		ListOptions{Status: orderstatus.Shipped, Page: 2, PerPage: 50})

	require.NoError(t, err)
	assert.Equal(t, "page=2&per_page=50&status=shipped", query)
	assert.Equal(t, 2, page.Page)
}

func TestClient_ListProducts(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("category")
		httpx.RespondJSON(w, http.StatusOK, map[string]any{"products": []Product{{ID: 3, Title: "Lamp"}}})
	}))
	defer srv.Close()

	products, err := NewClient(srv.URL, nil).ListProducts(context.Background(), "home & garden")

	require.NoError(t, err)
	assert.Equal(t, "home & garden", query)
	require.Len(t, products, 1)
	assert.Equal(t, "Lamp", products[0].Title)
}
