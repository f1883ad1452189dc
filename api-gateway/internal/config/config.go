package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/cartwheel/storefront/pkg/config"
)

type Config struct {
	Env             string
	HTTPPort        string
	ProductService  *url.URL
	CartService     *url.URL
	OrdersService   *url.URL
	JWTSecret       string
	RateLimitRPM    int
	RateLimitBurst  int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	config.LoadDotEnv()
	cfg := &Config{
		Env:             config.GetEnv("APP_ENV", "development"),
		HTTPPort:        config.GetEnv("GATEWAY_HTTP_PORT", "8080"),
		JWTSecret:       config.GetEnv("JWT_SECRET", ""),
		RateLimitRPM:    config.GetInt("RATE_LIMIT_RPM", 100),
		RateLimitBurst:  config.GetInt("RATE_LIMIT_BURST", 50),
		RequestTimeout:  config.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.RateLimitRPM <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be positive")
	}

	var err error
	if cfg.ProductService, err = parseURL("PRODUCT_SERVICE_URL", "http://localhost:8081"); err != nil {
		return nil, err
	}
	if cfg.CartService, err = parseURL("CART_SERVICE_URL", "http://localhost:8082"); err != nil {
		return nil, err
	}
	if cfg.OrdersService, err = parseURL("ORDERS_SERVICE_URL", "http://localhost:8083"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseURL(key, def string) (*url.URL, error) {
	raw := config.GetEnv(key, def)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: invalid url %q", key, raw)
	}
	return u, nil
}
