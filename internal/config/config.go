package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	LogLevel       string               `yaml:"log_level"`
	Feed           FeedConfig           `yaml:"feed"`
	Push           PushConfig           `yaml:"push"`
	Signals        SignalsConfig        `yaml:"signals"`
	Listing        ListingConfig        `yaml:"listing"`
	Store          StoreConfig          `yaml:"store"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// FeedConfig holds the listing API settings.
type FeedConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	SortBy       string        `yaml:"sort_by"`
	SortOrder    string        `yaml:"sort_order"`
	RatePerSec   float64       `yaml:"rate_per_sec"`
	Burst        int           `yaml:"burst"`
}

// PushConfig selects and configures the push transport.
type PushConfig struct {
	Transport     string `yaml:"transport"` // "websocket", "redis" or "none"
	URL           string `yaml:"url"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// SignalsConfig holds external mutation signal settings.
type SignalsConfig struct {
	NATSURL    string `yaml:"nats_url"`
	Subject    string `yaml:"subject"`
	StorageKey string `yaml:"storage_key"`
}

// ListingConfig holds listing view settings.
type ListingConfig struct {
	PageSize            int           `yaml:"page_size"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	VisibilityThreshold float64       `yaml:"visibility_threshold"`
	Location            string        `yaml:"location"`
}

// StoreConfig holds snapshot store settings.
type StoreConfig struct {
	Driver   string `yaml:"driver"` // "memory" or "postgres"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection string.
func (d StoreConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Default returns the configuration used when a key is not set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Feed: FeedConfig{
			PollInterval: 60 * time.Second,
			Timeout:      10 * time.Second,
			SortBy:       "createdAt",
			SortOrder:    "desc",
			RatePerSec:   2,
			Burst:        4,
		},
		Push: PushConfig{
			Transport: "websocket",
		},
		Signals: SignalsConfig{
			Subject:    "listings.changed",
			StorageKey: "auctions:last-change",
		},
		Listing: ListingConfig{
			PageSize:            12,
			TickInterval:        time.Second,
			VisibilityThreshold: 0.1,
			Location:            "/auctions",
		},
		Store: StoreConfig{
			Driver:  "memory",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctionwatch",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctionwatch-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// Load reads a YAML configuration file from the given path. Variables from a
// .env file in the working directory, if present, and the process
// environment override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUCTIONWATCH_FEED_BASE_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("AUCTIONWATCH_PUSH_URL"); v != "" {
		cfg.Push.URL = v
	}
	if v := os.Getenv("AUCTIONWATCH_REDIS_ADDR"); v != "" {
		cfg.Push.RedisAddr = v
	}
	if v := os.Getenv("AUCTIONWATCH_NATS_URL"); v != "" {
		cfg.Signals.NATSURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error

	if c.Feed.BaseURL == "" {
		errs = append(errs, errors.New("feed.base_url is required"))
	} else if u, err := url.Parse(c.Feed.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("feed.base_url %q must be an absolute url", c.Feed.BaseURL))
	}
	if c.Feed.PollInterval <= 0 {
		errs = append(errs, errors.New("feed.poll_interval must be positive"))
	}

	switch c.Push.Transport {
	case "none":
	case "websocket":
		if c.Push.URL == "" {
			errs = append(errs, errors.New("push.url is required for the websocket transport"))
		}
	case "redis":
		if c.Push.RedisAddr == "" {
			errs = append(errs, errors.New("push.redis_addr is required for the redis transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported push transport %q: must be \"websocket\", \"redis\" or \"none\"", c.Push.Transport))
	}

	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported store driver %q: must be \"memory\" or \"postgres\"", c.Store.Driver))
	}

	if c.Listing.PageSize <= 0 {
		errs = append(errs, errors.New("listing.page_size must be positive"))
	}
	if c.Listing.VisibilityThreshold < 0 || c.Listing.VisibilityThreshold > 1 {
		errs = append(errs, fmt.Errorf("listing.visibility_threshold %v must be within [0, 1]", c.Listing.VisibilityThreshold))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unsupported log level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}
