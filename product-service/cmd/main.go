package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/cartwheel/storefront/product-service/internal/config"
	producthttp "github.com/cartwheel/storefront/product-service/internal/http"
	"github.com/cartwheel/storefront/product-service/internal/repository"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	repo, err := repository.NewRepository(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to open catalog database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("migrations completed", zap.String("db_path", cfg.DBPath))

	r := httpx.NewRouter(log, cfg.RequestTimeout)
	producthttp.NewProductHandler(repo, cfg.RequestTimeout, log).Routes(r)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := httpx.NewServer(":"+cfg.HTTPPort, "product-service", r)
	if err := httpx.Serve(ctx, srv, cfg.ShutdownTimeout, log); err != nil {
		log.Error("server error", zap.Error(err))
	}
	log.Info("product service stopped")
}
