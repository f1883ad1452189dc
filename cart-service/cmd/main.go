package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	c "github.com/cartwheel/storefront/cart-service/internal/cache"
	"github.com/cartwheel/storefront/cart-service/internal/catalog"
	"github.com/cartwheel/storefront/cart-service/internal/config"
	carthttp "github.com/cartwheel/storefront/cart-service/internal/http"
	"github.com/cartwheel/storefront/cart-service/internal/poller"
	"github.com/cartwheel/storefront/cart-service/internal/repository"
	s "github.com/cartwheel/storefront/cart-service/internal/service"
	"github.com/cartwheel/storefront/pkg/httpx"
	"github.com/cartwheel/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDBName,
		MaxPoolSize:    uint64(cfg.MongoMaxPool),
		MinPoolSize:    uint64(cfg.MongoMinPool),
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mongoDB.Client().Disconnect(disconnectCtx)
	}()

	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}
	log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	cache := c.NewRedisCache(redisClient, cfg.CacheTTL)
	products := catalog.NewClient(cfg.ProductService, log)
	service := s.NewCartService(repo, cache, products, log)

	r := httpx.NewRouter(log, cfg.RequestTimeout)
	carthttp.NewCartHandler(service, cfg.RequestTimeout, log).Routes(r)
	srv := httpx.NewServer(":"+cfg.HTTPPort, "cart-service", r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpx.Serve(gctx, srv, cfg.ShutdownTimeout, log)
	})

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(repo, cache, log, cfg.KafkaBrokers...)
		g.Go(func() error {
			defer p.Close()
			p.Run(gctx)
			return nil
		})
		log.Info("order events consumer started", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		log.Warn("KAFKA_BROKERS not set, carts are only cleared by clients")
	}

	if err := g.Wait(); err != nil {
		log.Error("cart service exited with error", zap.Error(err))
	}
	log.Info("cart service stopped")
}
