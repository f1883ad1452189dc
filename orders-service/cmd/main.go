package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cartwheel/storefront/orders-service/internal/cartclient"
	"github.com/cartwheel/storefront/orders-service/internal/config"
	ordershttp "github.com/cartwheel/storefront/orders-service/internal/http"
	"github.com/cartwheel/storefront/orders-service/internal/publisher"
	"github.com/cartwheel/storefront/orders-service/internal/repository"
	"github.com/cartwheel/storefront/orders-service/internal/service"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
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

	log.Info("orders-service starting...")
	var wg sync.WaitGroup

	repo, err := repository.NewRepository(&repository.Credentials{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("database migrations completed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.KafkaBrokers) > 0 {
		outbox := publisher.NewOutboxPoller(repo, log, cfg.KafkaBrokers...)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer outbox.Close()
			outbox.Run(ctx)
		}()
		log.Info("outbox publisher started", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		log.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	carts := cartclient.NewClient(cfg.CartService, log)
	orders := service.NewOrderService(repo, carts, log)

	r := httpx.NewRouter(log, cfg.RequestTimeout)
	ordershttp.NewOrderHandler(orders, cfg.RequestTimeout, log).Routes(r)
	srv := httpx.NewServer(":"+cfg.HTTPPort, "orders-service", r)

	if err := httpx.Serve(ctx, srv, cfg.ShutdownTimeout, log); err != nil {
		log.Error("http server error", zap.Error(err))
	}

	// the server may have exited on its own; make sure workers stop too
	stop()
	wg.Wait()
	log.Info("orders service stopped")
}
