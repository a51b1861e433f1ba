package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL for the reconciliation journal" flag:"database-url"`

	Backend   BackendConfig
	Gateway   GatewayConfig
	Coupons   map[string]string `usage:"Coupon code to discount amount mapping"`
	Checkout  CheckoutConfig
	Worker    WorkerConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers for the
// storefront browser app.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// BackendConfig points at the storefront REST backend.
type BackendConfig struct {
	URL     string        `usage:"Storefront backend base URL (e.g. https://shop.example.com/api/v1)" flag:"backend-url"`
	Token   string        `usage:"Bearer token for backend calls" flag:"backend-token"`
	Timeout time.Duration `default:"10s" usage:"Per-request backend timeout"`
}

// GatewayConfig holds the payment gateway credentials.
type GatewayConfig struct {
	KeyID         string `usage:"Gateway API key id" flag:"gateway-key-id"`
	KeySecret     string `usage:"Gateway API key secret" flag:"gateway-key-secret"`
	WebhookSecret string `usage:"Gateway webhook HMAC secret" flag:"gateway-webhook-secret"`
	BaseURL       string `default:"" usage:"Gateway API base URL override (tests)" flag:"gateway-base-url"`
	Merchant      string `default:"Digital Bookstore" usage:"Merchant display name"`
	Currency      string `default:"INR" usage:"Payment currency code"`
}

// CheckoutConfig tunes the orchestrator.
type CheckoutConfig struct {
	GatewayTimeout        time.Duration `default:"10m" usage:"Wait bound for the gateway callback" flag:"gateway-timeout"`
	SessionRetention      time.Duration `default:"30m" usage:"How long terminal sessions stay fetchable before removal" flag:"session-retention"`
	ConfirmationRetention time.Duration `default:"1h"  usage:"How long confirmation snapshots stay fetchable" flag:"confirmation-retention"`
}

// WorkerConfig tunes the payment-record reconciliation worker.
type WorkerConfig struct {
	Interval time.Duration `default:"30s" usage:"Journal poll interval"`
	Batch    int           `default:"10"  usage:"Max journal entries retried per tick"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Backend.URL == "" {
		return nil, errors.New("backend URL is required: set CHECKOUT_BACKEND_URL")
	}
	if len(cfg.Coupons) == 0 {
		// The one storefront promotion, overridable via config.
		cfg.Coupons = map[string]string{"SALE100": "100.00"}
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the CHECKOUT_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
