// Package config loads service configuration from the environment and
// validates it before startup proceeds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Prices are the x402 prices in STX, converted to microSTX at the payment
// boundary.
type Prices struct {
	Water        decimal.Decimal
	PlantBasic   decimal.Decimal
	PlantPremium decimal.Decimal
	Feed         decimal.Decimal
}

// Config is the full service configuration.
type Config struct {
	// ServiceKey is the operator private key used to submit water
	// transactions. Startup aborts without it.
	ServiceKey string `validate:"required"`

	Port      int    `validate:"gt=0,lte=65535"`
	Network   string `validate:"oneof=mainnet testnet"`
	StacksAPI string `validate:"required,url"`
	LogLevel  string `validate:"oneof=debug info warn error"`

	// FeeMicroSTX is the fixed transaction fee, skipping the fee-estimation
	// endpoint and its rate limits.
	FeeMicroSTX uint64 `validate:"gt=0"`

	Prices Prices

	// Feed free-quota knobs.
	FeedFreeLimit int           `validate:"gt=0"`
	FeedWindow    time.Duration `validate:"gt=0"`

	EnableMetrics bool
}

var validate = validator.New()

// FromEnv reads configuration from the environment, applying the testnet
// defaults the demo deployment uses.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ServiceKey:  os.Getenv("SERVICE_PRIVATE_KEY"),
		Port:        envInt("PORT", 3402),
		Network:     envStr("NETWORK", "testnet"),
		StacksAPI:   envStr("STACKS_API", "https://api.testnet.hiro.so"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		FeeMicroSTX: uint64(envInt("FEE_MICROSTX", 10000)),
		Prices: Prices{
			Water:        envPrice("PRICE_WATER_STX", "0.001"),
			PlantBasic:   envPrice("PRICE_PLANT_BASIC_STX", "0.0001"),
			PlantPremium: envPrice("PRICE_PLANT_PREMIUM_STX", "0.001"),
			Feed:         envPrice("PRICE_FEED_STX", "0.001"),
		},
		FeedFreeLimit: envInt("FEED_FREE_LIMIT", 10),
		FeedWindow:    time.Duration(envInt("FEED_WINDOW_SECONDS", 3600)) * time.Second,
		EnableMetrics: envStr("ENABLE_METRICS", "true") == "true",
	}

	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("SERVICE_PRIVATE_KEY is required")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Prices.PlantPremium.LessThan(cfg.Prices.PlantBasic) {
		return nil, fmt.Errorf("premium plant price must be >= basic price")
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envPrice(key, def string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		d, _ = decimal.NewFromString(def)
	}
	return d
}
