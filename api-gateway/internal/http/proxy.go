package http

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const apiPrefix = "/api"

// Upstreams are the base URLs of the services behind the gateway.
type Upstreams struct {
	Products *url.URL
	Cart     *url.URL
	Orders   *url.URL
}

func NewProxy(target *url.URL, log *zap.Logger) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WithContext(r.Context(), log).Warn("upstream request failed",
				zap.String("upstream", target.Host), zap.Error(err))
			httpx.RespondError(w, http.StatusBadGateway, "bad_gateway", "upstream service unavailable")
		},
	}
	return http.StripPrefix(apiPrefix, proxy)
}

// Routes mounts the public API. Every /api request gets an identity; admin
// routes additionally require the admin role.
func Routes(r chi.Router, up Upstreams, v TokenValidator, limiter *RateLimiter, log *zap.Logger) {
	products := NewProxy(up.Products, log)
	cart := NewProxy(up.Cart, log)
	orders := NewProxy(up.Orders, log)

	r.Route(apiPrefix, func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Use(Identity(v))

		r.Handle("/products", products)
		r.Handle("/products/*", products)
		r.Handle("/cart", cart)
		r.Handle("/cart/*", cart)
		r.Handle("/orders", orders)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Handle("/admin/*", orders)
		})
	})
}
