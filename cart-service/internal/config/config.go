package config

import (
	"time"

	"github.com/cartwheel/storefront/pkg/config"
)

type Config struct {
	Env             string
	HTTPPort        string
	ProductService  string
	MongoURI        string
	MongoDBName     string
	MongoMaxPool    int
	MongoMinPool    int
	RedisAddr       string
	RedisPassword   string
	CacheTTL        time.Duration
	KafkaBrokers    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func Load() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:             config.GetEnv("APP_ENV", "development"),
		HTTPPort:        config.GetEnv("CART_HTTP_PORT", "8082"),
		ProductService:  config.GetEnv("PRODUCT_SERVICE_URL", "http://localhost:8081"),
		MongoURI:        config.GetEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:     config.GetEnv("MONGO_DB_NAME", "cartdb"),
		MongoMaxPool:    config.GetInt("MONGO_MAX_POOL_SIZE", 100),
		MongoMinPool:    config.GetInt("MONGO_MIN_POOL_SIZE", 10),
		RedisAddr:       config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   config.GetEnv("REDIS_PASSWORD", ""),
		CacheTTL:        config.GetDuration("CART_CACHE_TTL", 15*time.Minute),
		KafkaBrokers:    config.GetList("KAFKA_BROKERS", nil),
		RequestTimeout:  config.GetDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}
