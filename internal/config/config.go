// Package config loads the storefront configuration from a YAML file,
// a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/storefront/pkg/catalog"
	"github.com/Sternrassler/storefront/pkg/logging"
	"github.com/Sternrassler/storefront/pkg/pagination"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config is the storefront configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Redis   RedisConfig   `yaml:"redis"`
	Listing ListingConfig `yaml:"listing"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the web host.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ViewTTL         time.Duration `yaml:"view_ttl"`          // idle infinite-scroll views are dropped after this
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // CORS origins for /api
}

// CatalogConfig configures the listing API client.
type CatalogConfig struct {
	BaseURL   string              `yaml:"base_url"`
	UserAgent string              `yaml:"user_agent"`
	RateLimit int                 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Timeout   time.Duration       `yaml:"timeout"`
	Retry     catalog.RetryConfig `yaml:"retry"`
}

// RedisConfig configures the shared cache and throttle. An empty URL disables both.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ListingConfig configures the listing views.
type ListingConfig struct {
	PageSize            int           `yaml:"page_size"`
	HasNext             string        `yaml:"has_next"` // probe or full_page
	HideEmptyCategories bool          `yaml:"hide_empty_categories"`
	HasMoreFromInitial  bool          `yaml:"has_more_from_initial"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
}

// ExportConfig configures the bulk export command.
type ExportConfig struct {
	Concurrency int `yaml:"concurrency"`
	PageSize    int `yaml:"page_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Pretty bool   `yaml:"pretty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ViewTTL:         30 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Catalog: CatalogConfig{
			BaseURL:   catalog.DefaultBaseURL,
			UserAgent: "storefront/0.1.0",
			RateLimit: 10,
			Timeout:   10 * time.Second,
			Retry:     catalog.DefaultRetryConfig(),
		},
		Listing: ListingConfig{
			PageSize:     12,
			HasNext:      string(pagination.StrategyProbe),
			FetchTimeout: 15 * time.Second,
		},
		Export: ExportConfig{
			Concurrency: 5,
			PageSize:    50,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadDotEnv loads variables from a .env file without overriding the environment.
// A missing file is not an error; the result reports whether it was loaded.
func LoadDotEnv(path string) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

// Load loads configuration from a YAML file and applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("STOREFRONT_BASE_URL"); v != "" {
		c.Catalog.BaseURL = v
	}
	if v := os.Getenv("STOREFRONT_USER_AGENT"); v != "" {
		c.Catalog.UserAgent = v
	}
	if v := os.Getenv("STOREFRONT_HAS_NEXT"); v != "" {
		c.Listing.HasNext = v
	}
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"STOREFRONT_PAGE_SIZE", &c.Listing.PageSize},
		{"STOREFRONT_RATE_LIMIT", &c.Catalog.RateLimit},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = n
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"STOREFRONT_HIDE_EMPTY", &c.Listing.HideEmptyCategories},
		{"STOREFRONT_LOG_PRETTY", &c.Logging.Pretty},
	}
	for _, e := range bools {
		if v := os.Getenv(e.key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = b
		}
	}

	if v := os.Getenv("STOREFRONT_VIEW_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STOREFRONT_VIEW_TTL: %w", err)
		}
		c.Server.ViewTTL = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.ViewTTL <= 0 {
		return fmt.Errorf("server.view_ttl must be > 0")
	}

	u, err := url.Parse(c.Catalog.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("catalog.base_url must be an absolute http(s) URL (got %q)", c.Catalog.BaseURL)
	}
	if c.Catalog.UserAgent == "" {
		return fmt.Errorf("catalog.user_agent is required")
	}
	if c.Catalog.RateLimit < 0 {
		return fmt.Errorf("catalog.rate_limit must be >= 0")
	}

	if c.Listing.PageSize <= 0 {
		return fmt.Errorf("listing.page_size must be > 0 (got %d)", c.Listing.PageSize)
	}
	if _, err := pagination.ParseStrategy(c.Listing.HasNext); err != nil {
		return fmt.Errorf("listing.has_next: %w", err)
	}

	if c.Export.Concurrency <= 0 || c.Export.PageSize <= 0 {
		return fmt.Errorf("export.concurrency and export.page_size must be > 0")
	}

	switch logging.LogLevel(strings.ToLower(c.Logging.Level)) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	if _, err := c.Redis.Options(); err != nil {
		return err
	}

	return nil
}

// HasNextStrategy returns the configured has-next strategy.
func (c *Config) HasNextStrategy() pagination.Strategy {
	s, err := pagination.ParseStrategy(c.Listing.HasNext)
	if err != nil {
		return pagination.StrategyProbe
	}
	return s
}

// CatalogClientConfig builds the catalog client configuration.
func (c *Config) CatalogClientConfig(redisClient *redis.Client) catalog.Config {
	cfg := catalog.DefaultConfig(redisClient, c.Catalog.UserAgent)
	cfg.BaseURL = c.Catalog.BaseURL
	cfg.RateLimit = c.Catalog.RateLimit
	cfg.Timeout = c.Catalog.Timeout
	cfg.Retry = c.Catalog.Retry
	return cfg
}

// LoggerConfig builds the logger configuration.
func (c *Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.Logging.Level))
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// Options parses the Redis URL. Both "redis://host:port/db" and a bare
// "host:port" are accepted. Returns nil options when Redis is disabled.
func (r RedisConfig) Options() (*redis.Options, error) {
	if !r.Enabled() {
		return nil, nil
	}
	if strings.Contains(r.URL, "://") {
		opts, err := redis.ParseURL(r.URL)
		if err != nil {
			return nil, fmt.Errorf("redis.url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: r.URL}, nil
}
