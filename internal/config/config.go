package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the e-challan service
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Auth        AuthConfig     `mapstructure:"auth"`
	NATS        NATSConfig     `mapstructure:"nats"`
	Ingest      IngestConfig   `mapstructure:"ingest"`
	Pipeline    PipelineConfig `mapstructure:"pipeline"`
	Notify      NotifyConfig   `mapstructure:"notify"`
	Rules       RulesConfig    `mapstructure:"rules"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database configuration.
// URL is a postgres DSN or "sqlite://<path>" (":memory:" allowed).
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AuthConfig contains operator API authentication configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// NATSConfig contains event transport configuration
type NATSConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Embedded          bool   `mapstructure:"embedded"`
	Port              int    `mapstructure:"port"`
	URL               string `mapstructure:"url"`
	MaxPayload        int32  `mapstructure:"max_payload"`
	DetectionsSubject string `mapstructure:"detections_subject"`
	QueueGroup        string `mapstructure:"queue_group"`
	IssuedSubject     string `mapstructure:"issued_subject"`
}

// IngestConfig contains detection consumer configuration
type IngestConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PipelineConfig contains rule matching behaviour switches
type PipelineConfig struct {
	// DedupeRules collapses repeated matches of the same rule within one event.
	DedupeRules bool `mapstructure:"dedupe_rules"`
}

// NotifyConfig contains SMS notification configuration
type NotifyConfig struct {
	Provider        string        `mapstructure:"provider"` // auto, twilio, mock
	TwilioSID       string        `mapstructure:"twilio_sid"`
	TwilioToken     string        `mapstructure:"twilio_token"`
	FromNumber      string        `mapstructure:"from_number"`
	SendTimeout     time.Duration `mapstructure:"send_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	DefaultRegion   string        `mapstructure:"default_region"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
}

// TwilioConfigured reports whether real SMS credentials are present.
func (n NotifyConfig) TwilioConfigured() bool {
	return n.TwilioSID != "" && n.TwilioToken != "" && n.FromNumber != ""
}

// RulesConfig contains rule catalog cache configuration
type RulesConfig struct {
	CacheBackend string        `mapstructure:"cache_backend"` // none, memory, redis
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig contains Redis configuration for the shared rule cache
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// legacyEnv maps config keys to the plain environment names used by
// existing deployments, checked after the ECHALLAN_ prefixed form.
var legacyEnv = map[string]string{
	"database.url":        "DATABASE_URL",
	"server.port":         "PORT",
	"environment":         "ENV",
	"auth.jwt_secret":     "JWT_SECRET",
	"notify.twilio_sid":   "TWILIO_SID",
	"notify.twilio_token": "TWILIO_TOKEN",
	"notify.from_number":  "TWILIO_FROM",
}

// Load reads configuration from defaults, an optional config file and the
// environment. An empty path searches ./config.yaml and ./config/config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/echallan")
	}

	v.SetEnvPrefix("ECHALLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "ECHALLAN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("error binding env %s: %w", legacy, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url (DATABASE_URL) is not set")
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be >= 1, got %d", c.Notify.MaxAttempts)
	}
	if c.Notify.SendTimeout <= 0 {
		return fmt.Errorf("notify.send_timeout must be positive")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be >= 1, got %d", c.Ingest.Workers)
	}
	switch c.Notify.Provider {
	case "auto", "twilio", "mock":
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	if c.Notify.Provider == "twilio" && !c.Notify.TwilioConfigured() {
		return fmt.Errorf("notify.provider is twilio but credentials are incomplete")
	}
	switch c.Rules.CacheBackend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown rules.cache_backend %q", c.Rules.CacheBackend)
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.port", 3001)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.jwt_secret", "iris-secret-key-change-in-production")
	v.SetDefault("auth.token_ttl", "24h")

	// Port 4233 keeps clear of edge-node NATS on 4222
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.embedded", true)
	v.SetDefault("nats.port", 4233)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.max_payload", 1024*1024)
	v.SetDefault("nats.detections_subject", "echallan.detections")
	v.SetDefault("nats.queue_group", "echallan-workers")
	v.SetDefault("nats.issued_subject", "echallan.challans.issued")

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_size", 256)
	v.SetDefault("ingest.request_timeout", "30s")

	v.SetDefault("pipeline.dedupe_rules", false)

	v.SetDefault("notify.provider", "auto")
	v.SetDefault("notify.send_timeout", "10s")
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("notify.retry_delay", "2s")
	v.SetDefault("notify.default_region", "IN")
	v.SetDefault("notify.rate_limit_per_min", 10)

	v.SetDefault("rules.cache_backend", "memory")
	v.SetDefault("rules.cache_ttl", "1m")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
