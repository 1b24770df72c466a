package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STOREFRONT_"

type Config struct {
	App struct {
		Name      string `koanf:"name"`
		HTTPAddr  string `koanf:"http_addr"`
		LogLevel  string `koanf:"log_level"`
		LogFile   string `koanf:"log_file"`
		BodyLimit int    `koanf:"body_limit"`
		RateLimit int    `koanf:"rate_limit"` // requests per minute per IP; 0 disables
	} `koanf:"app"`

	DB DBConfig `koanf:"db"`

	Auth struct {
		JWTSecret string        `koanf:"jwt_secret"`
		Issuer    string        `koanf:"issuer"`
		TTL       time.Duration `koanf:"ttl"`
	} `koanf:"auth"`

	Pricing struct {
		FreeShippingThreshold string `koanf:"free_shipping_threshold"`
		FlatShippingRate      string `koanf:"flat_shipping_rate"`
		TaxRate               string `koanf:"tax_rate"`
		Currency              string `koanf:"currency"`
	} `koanf:"pricing"`

	Checkout struct {
		RequireAddress bool          `koanf:"require_address"`
		Timeout        time.Duration `koanf:"timeout"`
	} `koanf:"checkout"`

	Payments struct {
		CheckoutBaseURL string `koanf:"checkout_base_url"`
	} `koanf:"payments"`

	Redis struct {
		Addr           string        `koanf:"addr"`
		Password       string        `koanf:"password"`
		IdempotencyTTL time.Duration `koanf:"idempotency_ttl"`
	} `koanf:"redis"`

	Rabbit struct {
		URL        string `koanf:"url"`
		Exchange   string `koanf:"exchange"`
		RoutingKey string `koanf:"routing_key"`
	} `koanf:"rabbitmq"`

	Outbox struct {
		PollInterval time.Duration `koanf:"poll_interval"`
		BatchSize    int           `koanf:"batch_size"`
	} `koanf:"outbox"`
}

type DBConfig struct {
	Driver          string        `koanf:"driver"` // sqlite | mysql
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	Seed            bool          `koanf:"seed"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	var c Config
	c.App.Name = "storefront"
	c.App.HTTPAddr = ":8080"
	c.App.LogLevel = "info"
	c.App.LogFile = "./storefront.log" // default log sink in project root
	c.App.BodyLimit = 1 << 20
	c.App.RateLimit = 120

	c.DB = DBConfig{Driver: "sqlite", DSN: "storefront.db", MaxOpenConns: 16, MaxIdleConns: 16, ConnMaxLifetime: 30 * time.Minute, Seed: true}

	c.Auth.JWTSecret = "dev-secret-change-me"
	c.Auth.Issuer = "storefront"
	c.Auth.TTL = 15 * time.Minute

	c.Pricing.FreeShippingThreshold = "50"
	c.Pricing.FlatShippingRate = "5.99"
	c.Pricing.TaxRate = "0.21"
	c.Pricing.Currency = "EUR"

	c.Checkout.Timeout = 5 * time.Second
	c.Payments.CheckoutBaseURL = "http://localhost:8080/pay/"

	c.Redis.IdempotencyTTL = 24 * time.Hour

	c.Rabbit.Exchange = "order.events"
	c.Rabbit.RoutingKey = "order.#"

	c.Outbox.PollInterval = 2 * time.Second
	c.Outbox.BatchSize = 50
	return c
}

// Load layers: defaults -> .env -> YAML file -> STOREFRONT_* environment.
// Nested keys use "__" in env names, e.g. STOREFRONT_DB__DSN.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	k := koanf.New(".")

	path := os.Getenv(envPrefix + "CONFIG")
	if path == "" {
		path = "configs/config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
		log.Printf("[config] %s not found, using defaults + env", path)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	log.Printf("[config] ADDR=%s DB=%s(%s) LOG_FILE=%s REDIS=%q RABBIT=%q REQUIRE_ADDRESS=%v",
		cfg.App.HTTPAddr, cfg.DB.Driver, mask(cfg.DB.DSN), cfg.App.LogFile,
		cfg.Redis.Addr, mask(cfg.Rabbit.URL), cfg.Checkout.RequireAddress)
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return errors.New("app.http_addr required")
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("db.driver %q not supported (sqlite|mysql)", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret required")
	}
	if c.Checkout.Timeout <= 0 {
		return errors.New("checkout.timeout must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("outbox.batch_size must be positive")
	}
	return nil
}

// mask hides credentials embedded in a DSN/URL (user:pass@...).
func mask(s string) string {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return s
	}
	scheme := ""
	if i := strings.Index(s, "://"); i >= 0 && i < at {
		scheme = s[:i+3]
	}
	return scheme + "***" + s[at:]
}
