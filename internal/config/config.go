package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `envconfig:"SERVER"`
	Database    DatabaseConfig    `envconfig:"DB"`
	Redis       RedisConfig       `envconfig:"REDIS"`
	Session     SessionConfig     `envconfig:"SESSION"`
	Log         LogConfig         `envconfig:"LOG"`
	OTEL        OTELConfig        `envconfig:"OTEL"`
	RateLimit   RateLimitConfig   `envconfig:"RATELIMIT"`
	RoleRequest RoleRequestConfig `envconfig:"ROLE_REQUEST"`
	Cache       CacheConfig       `envconfig:"CACHE"`
	Store       StoreConfig       `envconfig:"STORE"`
	Notify      NotifyConfig      `envconfig:"NOTIFY"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `envconfig:"HOST" default:"0.0.0.0"`
	Port           string        `envconfig:"PORT" default:"8080"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout    time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string `envconfig:"HOST" default:"localhost"`
	Port         string `envconfig:"PORT" default:"5432"`
	User         string `envconfig:"USER" default:"civicguard"`
	Password     string `envconfig:"PASSWORD"`
	Database     string `envconfig:"NAME" default:"civicguard"`
	SSLMode      string `envconfig:"SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"MAX_IDLE_CONNS" default:"5"`
}

// RedisConfig holds the shared Redis used by the principal cache and the notification queue
type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"127.0.0.1:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

// SessionConfig holds bearer token verification settings
type SessionConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// OTELConfig holds tracing and metrics configuration
type OTELConfig struct {
	Enabled        bool    `envconfig:"ENABLED" default:"false"`
	ServiceName    string  `envconfig:"SERVICE_NAME" default:"civicguard"`
	ServiceVersion string  `envconfig:"SERVICE_VERSION" default:"0.1.0"`
	Endpoint       string  `envconfig:"EXPORTER_OTLP_ENDPOINT" default:"localhost:4318"`
	Insecure       bool    `envconfig:"EXPORTER_OTLP_INSECURE" default:"true"`
	SamplingRate   float64 `envconfig:"SAMPLING_RATE" default:"1.0"`
}

// RateLimitConfig holds the global per-IP limiter and the per-user limit on role request submission
type RateLimitConfig struct {
	RequestsPerSecond float64       `envconfig:"RPS" default:"10"`
	Burst             int           `envconfig:"BURST" default:"20"`
	SubmitPerUser     int           `envconfig:"SUBMIT_PER_USER" default:"10"`
	SubmitWindow      time.Duration `envconfig:"SUBMIT_WINDOW" default:"1m"`
}

// RoleRequestConfig bounds role requests per principal
type RoleRequestConfig struct {
	MaxPerWindow int           `envconfig:"MAX_PER_WINDOW" default:"3"`
	Window       time.Duration `envconfig:"WINDOW" default:"24h"`
}

// CacheConfig selects the principal cache
type CacheConfig struct {
	Backend      string        `envconfig:"BACKEND" default:"memory"`
	PrincipalTTL time.Duration `envconfig:"PRINCIPAL_TTL" default:"5m"`
	Size         int           `envconfig:"SIZE" default:"10000"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Backend string `envconfig:"BACKEND" default:"postgres"`
}

// NotifyConfig selects how notifications leave the server
type NotifyConfig struct {
	Backend     string `envconfig:"BACKEND" default:"store"`
	MaxRetry    int    `envconfig:"MAX_RETRY" default:"5"`
	Concurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
}

// Backend names
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendStore    = "store"
	BackendQueue    = "queue"
	BackendLog      = "log"
	BackendNone     = "none"
)

// Read loads configuration from environment variables without validating
// it. Tools that need only part of the configuration use it directly.
func Read() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// Load reads and validates the server configuration
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Backend == BackendPostgres && c.Database.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required"))
	}
	if c.Session.JWTSecret == "" {
		errs = append(errs, errors.New("SESSION_JWT_SECRET is required"))
	}
	if c.RoleRequest.MaxPerWindow <= 0 {
		errs = append(errs, errors.New("ROLE_REQUEST_MAX_PER_WINDOW must be positive"))
	}
	if c.RoleRequest.Window <= 0 {
		errs = append(errs, errors.New("ROLE_REQUEST_WINDOW must be positive"))
	}
	if !oneOf(c.Cache.Backend, BackendMemory, BackendRedis, BackendNone) {
		errs = append(errs, fmt.Errorf("CACHE_BACKEND %q is not supported", c.Cache.Backend))
	}
	if !oneOf(c.Store.Backend, BackendMemory, BackendPostgres) {
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not supported", c.Store.Backend))
	}
	if !oneOf(c.Notify.Backend, BackendLog, BackendStore, BackendQueue) {
		errs = append(errs, fmt.Errorf("NOTIFY_BACKEND %q is not supported", c.Notify.Backend))
	}
	return errors.Join(errs...)
}

// NeedsRedis reports whether any component is configured onto Redis.
func (c *Config) NeedsRedis() bool {
	return c.Cache.Backend == BackendRedis || c.Notify.Backend == BackendQueue
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
