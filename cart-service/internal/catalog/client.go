// Package catalog reads product snapshots from the product service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cartwheel/storefront/cart-service/internal/domain"
	"github.com/cartwheel/storefront/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrUnavailable     = errors.New("catalog unavailable")
)

type Client struct {
	baseURL string
	http    *circuitbreaker.HTTP
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    circuitbreaker.NewHTTP(httpClient, circuitbreaker.DefaultConfig("catalog"), log),
	}
}

type productsResponse struct {
	Products []domain.Product `json:"products"`
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := c.get(ctx, "/products/"+strconv.FormatInt(id, 10), &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProducts returns the products found, keyed by id. Ids the catalog does
// not know are absent from the map.
func (c *Client) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}

	var resp productsResponse
	if err := c.get(ctx, "/products?ids="+url.QueryEscape(strings.Join(parts, ",")), &resp); err != nil {
		return nil, err
	}
	for _, p := range resp.Products {
		out[p.ID] = p
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := c.http.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrProductNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}
