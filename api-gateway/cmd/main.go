package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cartwheel/storefront/api-gateway/internal/auth"
	"github.com/cartwheel/storefront/api-gateway/internal/config"
	h "github.com/cartwheel/storefront/api-gateway/internal/http"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := h.NewRateLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitRPM)), cfg.RateLimitBurst, 5*time.Minute)
	go limiter.RunCleanup(ctx)

	r := httpx.NewRouter(log, cfg.RequestTimeout)
	r.Use(middleware.Compress(5))
	h.Routes(r, h.Upstreams{
		Products: cfg.ProductService,
		Cart:     cfg.CartService,
		Orders:   cfg.OrdersService,
	}, auth.NewValidator(cfg.JWTSecret), limiter, log)

	srv := httpx.NewServer(":"+cfg.HTTPPort, "api-gateway", r)
	if err := httpx.Serve(ctx, srv, cfg.ShutdownTimeout, log); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("gateway exited")
}
