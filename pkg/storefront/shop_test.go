package storefront

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/orderstatus"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fakeShop is an in-memory stand-in for the gateway and the services
// behind it.
type fakeShop struct {
	mu sync.Mutex

	products  map[int64]Product
	cart      []CartItem
	nextItem  int
	orders    []*Order
	nextOrder int64

	rejectOrder string
	failClear   bool
	keys        []string
	calls       map[string]int
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		products: map[int64]Product{
			1: {ID: 1, Title: "Mug", Price: decimal.RequireFromString("25.00"), StockQuantity: 10},
			2: {ID: 2, Title: "Poster", Price: decimal.RequireFromString("9.99"), StockQuantity: 5},
		},
		nextOrder: 1,
		calls:     map[string]int{},
	}
}

// start serves the shop and returns a client pointed at it.
func (s *fakeShop) start(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api", zap.NewNop()), srv
}

func (s *fakeShop) seedOrder(id int64, email string, status orderstatus.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, &Order{
		ID:            id,
		CustomerEmail: email,
		Status:        status,
		Items:         []OrderItem{},
		TotalPrice:    decimal.NewFromInt(10),
		CreatedAt:     time.Now(),
	})
	if id >= s.nextOrder {
		s.nextOrder = id + 1
	}
}

func (s *fakeShop) callCount(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *fakeShop) idempotencyKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func (s *fakeShop) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeShop) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			s.mu.Lock()
			s.calls[req.Method+" "+req.URL.Path]++
			s.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/cart", s.getCart)
		r.Post("/cart", s.addItem)
		r.Delete("/cart/clear", s.clearCart)
		r.Put("/cart/{itemID}", s.updateItem)
		r.Delete("/cart/{itemID}", s.removeItem)
		r.Post("/orders", s.createOrder)
		r.Route("/admin/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Get("/stats", s.stats)
			r.Post("/bulk-status", s.bulkStatus)
			r.Get("/{orderID}", s.getOrder)
			r.Patch("/{orderID}", s.updateDetails)
			r.Put("/{orderID}/status", s.updateStatus)
		})
	})
	return r
}

func (s *fakeShop) getCart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]CartItem{}, s.cart...)
	httpx.RespondJSON(w, http.StatusOK, out)
}

func (s *fakeShop) addItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[body.ProductID]
	if !ok {
		httpx.RespondError(w, http.StatusNotFound, "not_found", "product not found")
		return
	}
	for i := range s.cart {
		if s.cart[i].Product.ID == p.ID {
			s.cart[i].Quantity += body.Quantity
			httpx.RespondJSON(w, http.StatusCreated, s.cart[i])
			return
		}
	}
	s.nextItem++
	item := CartItem{ID: "item-" + strconv.Itoa(s.nextItem), Product: p, Quantity: body.Quantity}
	s.cart = append(s.cart, item)
	httpx.RespondJSON(w, http.StatusCreated, item)
}

func (s *fakeShop) updateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	if body.Quantity < 1 {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "quantity must be at least 1")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "itemID")
	for i := range s.cart {
		if s.cart[i].ID == id {
			s.cart[i].Quantity = body.Quantity
			httpx.RespondJSON(w, http.StatusOK, s.cart[i])
			return
		}
	}
	httpx.RespondError(w, http.StatusNotFound, "not_found", "cart item not found")
}

func (s *fakeShop) removeItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "itemID")
	for i := range s.cart {
		if s.cart[i].ID == id {
			s.cart = append(s.cart[:i], s.cart[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	httpx.RespondError(w, http.StatusNotFound, "not_found", "cart item not found")
}

func (s *fakeShop) clearCart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failClear {
		httpx.RespondError(w, http.StatusInternalServerError, "internal", "cart store unavailable")
		return
	}
	s.cart = nil
	w.WriteHeader(http.StatusNoContent)
}

func (s *fakeShop) createOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, r.Header.Get(httpx.HeaderIdempotencyKey))
	if s.rejectOrder != "" {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", s.rejectOrder)
		return
	}
	if len(s.cart) == 0 {
		httpx.RespondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
		return
	}

	order := &Order{
		ID:              s.nextOrder,
		CustomerEmail:   req.CustomerEmail,
		Status:          orderstatus.Pending,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		OrderNotes:      req.OrderNotes,
		CreatedAt:       time.Now(),
		TotalPrice:      decimal.Zero,
	}
	for _, it := range s.cart {
		line := it.LineTotal()
		order.Items = append(order.Items, OrderItem{
			ProductID: it.Product.ID,
			Title:     it.Product.Title,
			UnitPrice: it.Product.Price,
			Quantity:  it.Quantity,
			LineTotal: line,
		})
		order.TotalPrice = order.TotalPrice.Add(line)
	}
	s.nextOrder++
	s.orders = append(s.orders, order)
	httpx.RespondJSON(w, http.StatusCreated, order)
}

func (s *fakeShop) listOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 20
	}
	status := orderstatus.Status(r.URL.Query().Get("status"))

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Order
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			matched = append(matched, *o)
		}
	}
	out := []Order{}
	start := (page - 1) * perPage
	if start < len(matched) {
		out = matched[start:min(start+perPage, len(matched))]
	}
	httpx.RespondJSON(w, http.StatusOK, OrderPage{Orders: out, Total: len(matched), Page: page, PerPage: perPage})
}

func (s *fakeShop) find(w http.ResponseWriter, r *http.Request) *Order {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "invalid order id")
		return nil
	}
	for _, o := range s.orders {
		if o.ID == id {
			return o
		}
	}
	httpx.RespondError(w, http.StatusNotFound, "not_found", "order not found")
	return nil
}

func (s *fakeShop) getOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o := s.find(w, r); o != nil {
		httpx.RespondJSON(w, http.StatusOK, o)
	}
}

func (s *fakeShop) transition(o *Order, to orderstatus.Status) error {
	if !orderstatus.CanTransition(o.Status, to) {
		return fmt.Errorf("cannot change order status from %s to %s", o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

func (s *fakeShop) updateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status orderstatus.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.find(w, r)
	if o == nil {
		return
	}
	if err := s.transition(o, body.Status); err != nil {
		httpx.RespondError(w, http.StatusConflict, "illegal_transition", err.Error())
		return
	}
	httpx.RespondJSON(w, http.StatusOK, o)
}

func (s *fakeShop) updateDetails(w http.ResponseWriter, r *http.Request) {
	var upd DetailsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.find(w, r)
	if o == nil {
		return
	}
	if upd.OrderNotes != nil {
		o.OrderNotes = *upd.OrderNotes
	}
	if upd.TrackingNumber != nil {
		o.TrackingNumber = *upd.TrackingNumber
	}
	httpx.RespondJSON(w, http.StatusOK, o)
}

func (s *fakeShop) bulkStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderIDs []int64           `json:"order_ids"`
		Status   orderstatus.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := BulkResult{Failed: []BulkFailure{}}
	for _, id := range body.OrderIDs {
		var found *Order
		for _, o := range s.orders {
			if o.ID == id {
				found = o
			}
		}
		if found == nil {
			res.Failed = append(res.Failed, BulkFailure{OrderID: id, Error: "order not found"})
			continue
		}
		if err := s.transition(found, body.Status); err != nil {
			res.Failed = append(res.Failed, BulkFailure{OrderID: id, Error: err.Error()})
			continue
		}
		res.UpdatedCount++
	}
	httpx.RespondJSON(w, http.StatusOK, res)
}

func (s *fakeShop) stats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{TotalRevenue: decimal.Zero, StatusCounts: map[orderstatus.Status]int{}, RecentOrders: []Order{}}
	for _, o := range s.orders {
		st.TotalOrders++
		st.StatusCounts[o.Status]++
		if o.Status != orderstatus.Cancelled {
			st.TotalRevenue = st.TotalRevenue.Add(o.TotalPrice)
		}
	}
	httpx.RespondJSON(w, http.StatusOK, st)
}
