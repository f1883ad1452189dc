package config

import (
	"time"

	"github.com/cartwheel/storefront/pkg/config"
)

type Config struct {
	Env             string
	HTTPPort        string
	DBPath          string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func Load() *Config {
	config.LoadDotEnv()
	return &Config{
		Env:             config.GetEnv("APP_ENV", "development"),
		HTTPPort:        config.GetEnv("PRODUCT_HTTP_PORT", "8081"),
		DBPath:          config.GetEnv("DB_PATH", "./products.db"),
		RequestTimeout:  config.GetDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: config.GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}
