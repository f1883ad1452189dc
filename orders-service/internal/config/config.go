package config

import (
	"time"

	"github.com/cartwheel/storefront/pkg/config"
)

type Config struct {
	Env             string
	HTTPPort        string
	CartService     string
	DBHost          string
	DBPort          int
	DBUser          string
	DBPassword      string
	DBName          string
	KafkaBrokers    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func Load() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:             config.GetEnv("APP_ENV", "development"),
		HTTPPort:        config.GetEnv("ORDERS_HTTP_PORT", "8083"),
		CartService:     config.GetEnv("CART_SERVICE_URL", "http://localhost:8082"),
		DBHost:          config.GetEnv("DB_HOST", "localhost"),
		DBPort:          config.GetInt("DB_PORT", 5432),
		DBUser:          config.GetEnv("DB_USER", "postgres"),
		DBPassword:      config.GetEnv("DB_PASSWORD", "postgres"),
		DBName:          config.GetEnv("DB_NAME", "ecommerce"),
		KafkaBrokers:    config.GetList("KAFKA_BROKERS", nil),
		RequestTimeout:  config.GetDuration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}
