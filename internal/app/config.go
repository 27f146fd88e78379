package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (GREENCART_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (GREENCART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL  string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	JWTSecret     string `usage:"HMAC secret for customer bearer tokens" flag:"jwt-secret"`
	APIKeyPepper  string `usage:"HMAC pepper for seller API key hashing" flag:"api-key-pepper"`
	WebhookSecret string `usage:"Shared secret for payment webhook signatures" flag:"webhook-secret"`
	Payment       PaymentConfig
	Events        EventsConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// PaymentConfig points at the checkout session processor.
type PaymentConfig struct {
	BaseURL    string `default:"https://api.stripe.com" usage:"Payment processor base URL" flag:"payment-base-url"`
	SecretKey  string `usage:"Payment processor secret key" flag:"payment-secret-key"`
	SuccessURL string `usage:"Redirect target after a paid checkout session" flag:"payment-success-url"`
	CancelURL  string `usage:"Redirect target after an abandoned checkout session" flag:"payment-cancel-url"`
}

// EventsConfig controls the optional order event publisher. An empty URL
// disables publishing.
type EventsConfig struct {
	URL      string `default:"" usage:"AMQP broker URL (empty disables events)" flag:"events-url"`
	Exchange string `default:"greencart.orders" usage:"Topic exchange for order events" flag:"events-exchange"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
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
		EnvPrefix: "GREENCART",
		Files:     []string{"config.yaml", "/etc/greencart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set GREENCART_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required: set GREENCART_JWT_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's GREENCART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Events.URL == "" {
		if v := os.Getenv("AMQP_URL"); v != "" {
			c.Events.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
