// Package storefront is the shopper and admin client for the storefront API:
// a cart store that mirrors the server cart, a checkout coordinator, and an
// order lifecycle manager for the admin console.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/cartwheel/storefront/pkg/circuitbreaker"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/orderstatus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Client talks to the gateway. baseURL includes the /api prefix.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    circuitbreaker.Config
	http       *circuitbreaker.HTTP
	token      string
	log        *zap.Logger

	mu        sync.Mutex
	sessionID string
}

type Option func(*Client)

// WithHTTPClient replaces the default otelhttp instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken authenticates every request with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithSessionID resumes an anonymous session.
func WithSessionID(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

func WithBreaker(cfg circuitbreaker.Config) Option {
	return func(c *Client) { c.breaker = cfg }
}

func NewClient(baseURL string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker:    circuitbreaker.DefaultConfig("storefront"),
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = circuitbreaker.NewHTTP(c.httpClient, c.breaker, log)
	return c
}

// SessionID is the anonymous session the gateway assigned, if any.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) GetCart(ctx context.Context) ([]CartItem, error) {
	var items []CartItem
	if err := c.do(ctx, "fetch cart", http.MethodGet, "/cart", nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) AddItem(ctx context.Context, productID int64, quantity int) (*CartItem, error) {
	body := map[string]any{"product_id": productID, "quantity": quantity}
	var item CartItem
	if err := c.do(ctx, "add to cart", http.MethodPost, "/cart", body, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) UpdateItem(ctx context.Context, itemID string, quantity int) (*CartItem, error) {
	body := map[string]any{"quantity": quantity}
	var item CartItem
	if err := c.do(ctx, "update cart item", http.MethodPut, "/cart/"+url.PathEscape(itemID), body, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) RemoveItem(ctx context.Context, itemID string) error {
	return c.do(ctx, "remove from cart", http.MethodDelete, "/cart/"+url.PathEscape(itemID), nil, nil, nil)
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, "clear cart", http.MethodDelete, "/cart/clear", nil, nil, nil)
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest, idempotencyKey string) (*Order, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{httpx.HeaderIdempotencyKey: idempotencyKey}
	}
	var order Order
	if err := c.do(ctx, "create order", http.MethodPost, "/orders", req, headers, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) ListOrders(ctx context.Context, opts ListOptions) (*OrderPage, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	path := "/admin/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page OrderPage
	if err := c.do(ctx, "list orders", http.MethodGet, path, nil, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var order Order
	if err := c.do(ctx, "get order", http.MethodGet, orderPath(id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status orderstatus.Status) (*Order, error) {
	body := map[string]string{"status": string(status)}
	var order Order
	if err := c.do(ctx, "update order status", http.MethodPut, orderPath(id)+"/status", body, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) UpdateOrderDetails(ctx context.Context, id int64, upd DetailsUpdate) (*Order, error) {
	var order Order
	if err := c.do(ctx, "update order", http.MethodPatch, orderPath(id), upd, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) BulkUpdateStatus(ctx context.Context, ids []int64, status orderstatus.Status) (*BulkResult, error) {
	body := map[string]any{"order_ids": ids, "status": status}
	var res BulkResult
	if err := c.do(ctx, "bulk update status", http.MethodPost, "/admin/orders/bulk-status", body, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) OrderStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, "order stats", http.MethodGet, "/admin/orders/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) ListProducts(ctx context.Context, category string) ([]Product, error) {
	path := "/products"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var resp struct {
		Products []Product `json:"products"`
	}
	if err := c.do(ctx, "list products", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}

func orderPath(id int64) string {
	return "/admin/orders/" + strconv.FormatInt(id, 10)
}

// do sends one request. Transport failures come back as *NetworkError and
// non-2xx answers as *ApplicationError carrying the server's error text.
func (c *Client) do(ctx context.Context, op, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if sid := c.SessionID(); sid != "" {
		req.Header.Set(httpx.HeaderSessionID, sid)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if resp == nil {
		if err == nil {
			err = errors.New("empty response")
		}
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(httpx.HeaderSessionID); sid != "" {
		c.mu.Lock()
		c.sessionID = sid
		c.mu.Unlock()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ApplicationError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorMessage(resp *http.Response) string {
	var body httpx.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return http.StatusText(resp.StatusCode)
}
