// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// StoreBackend selects the durable store implementation.
type StoreBackend string

const (
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendMemory   StoreBackend = "memory"
)

// AuthMode selects how bearer tokens are verified.
type AuthMode string

const (
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock accepts the fixed tokens in DEV_AUTH_TOKENS. Development only.
	AuthModeMock AuthMode = "mock"
)

// Config is the full process configuration.
type Config struct {
	HTTP     HTTPConfig
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Broker   BrokerConfig   `envPrefix:"BROKER_"`
	Dispatch DispatchConfig `envPrefix:"DISPATCH_"`
	Store    StoreConfig
	Postgres DBConfig `envPrefix:"DB_"`
	Auth     AuthConfig
	Storage  StorageConfig   `envPrefix:"S3_"`
	Limits   RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Registry RegistryConfig  `envPrefix:"REGISTRY_"`
	Log      LogConfig       `envPrefix:"LOG_"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR"             envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxUploadBytes  int64         `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	AllowedOrigin   string        `env:"CORS_ALLOWED_ORIGIN"   envDefault:"*"`
	// SSEKeepAlive is the interval between comment frames on idle event streams.
	SSEKeepAlive time.Duration `env:"SSE_KEEPALIVE" envDefault:"15s"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// BrokerConfig configures topics, consumer groups and the connect loop.
type BrokerConfig struct {
	ConnectAttempts  int           `env:"CONNECT_ATTEMPTS"  envDefault:"5"`
	ConnectInterval  time.Duration `env:"CONNECT_INTERVAL"  envDefault:"5s"`
	WorkTopic        string        `env:"WORK_TOPIC"        envDefault:"trademark-workers"`
	ResultTopic      string        `env:"RESULT_TOPIC"      envDefault:"trademark-results"`
	ConsumerGroup    string        `env:"CONSUMER_GROUP"    envDefault:"trademark-consumer-group"`
	Concurrency      int           `env:"CONCURRENCY"       envDefault:"8"`
	RecoveryInterval time.Duration `env:"RECOVERY_INTERVAL" envDefault:"30s"`
	RecoveryMinIdle  time.Duration `env:"RECOVERY_MIN_IDLE" envDefault:"1m"`
}

type DispatchConfig struct {
	Attempts int           `env:"ATTEMPTS" envDefault:"3"`
	Delay    time.Duration `env:"DELAY"    envDefault:"1s"`
}

type StoreConfig struct {
	Backend StoreBackend `env:"STORE_BACKEND" envDefault:"postgres"`
}

// DBConfig contains PostgreSQL configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"markcheck"`
	Password string `env:"PASSWORD" envDefault:"markcheck"`
	Name     string `env:"NAME"     envDefault:"markcheck"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
	// RunMigrations applies pending schema migrations at startup.
	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`
}

type AuthConfig struct {
	Mode         AuthMode `env:"AUTH_MODE"       envDefault:"oidc"`
	OIDCIssuer   string   `env:"OIDC_ISSUER"`
	OIDCClientID string   `env:"OIDC_CLIENT_ID"`
	// DevTokens is "token=owner;token2=owner2", read only in mock mode.
	DevTokens string `env:"DEV_AUTH_TOKENS"`
}

// StorageConfig configures the S3-compatible image bucket.
type StorageConfig struct {
	Endpoint      string `env:"ENDPOINT"        envDefault:"localhost:9000"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	Bucket        string `env:"BUCKET"          envDefault:"trademark-images"`
	UseSSL        bool   `env:"USE_SSL"         envDefault:"false"`
	Region        string `env:"REGION"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	KeyPrefix     string `env:"KEY_PREFIX"      envDefault:"trademark-images"`
}

type RateLimitConfig struct {
	RPS   float64 `env:"RPS"   envDefault:"0.5"`
	Burst int     `env:"BURST" envDefault:"5"`
}

type RegistryConfig struct {
	// PruneInterval enables periodic removal of channels without listeners. 0 disables it.
	PruneInterval time.Duration `env:"PRUNE_INTERVAL" envDefault:"0"`
}

type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// WorkerConfig is the subset read by the development worker.
type WorkerConfig struct {
	Redis  RedisConfig  `envPrefix:"REDIS_"`
	Broker BrokerConfig `envPrefix:"BROKER_"`
	// Group is the worker's own consumer group on the work topic.
	Group string    `env:"SIMWORKER_GROUP" envDefault:"trademark-analysis-group"`
	Log   LogConfig `envPrefix:"LOG_"`
}

// Load reads an optional .env file and parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	cfg.Sanitize()
	return cfg, cfg.Validate()
}

// LoadWorker is Load for the development worker.
func LoadWorker() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Broker.ConnectAttempts < 1 {
		cfg.Broker.ConnectAttempts = 1
	}
	if cfg.Broker.Concurrency < 1 {
		cfg.Broker.Concurrency = 1
	}
	return cfg, nil
}

func parse(v any) error {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}
	if err := env.Parse(v); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Sanitize applies guardrails to values that would otherwise break startup.
func (c *Config) Sanitize() {
	if c.Broker.ConnectAttempts < 1 {
		c.Broker.ConnectAttempts = 1
	}
	if c.Broker.ConnectInterval < 0 {
		c.Broker.ConnectInterval = 0
	}
	if c.Broker.Concurrency < 1 {
		c.Broker.Concurrency = 1
	}
	if c.Dispatch.Attempts < 1 {
		c.Dispatch.Attempts = 1
	}
	if c.Dispatch.Delay < 0 {
		c.Dispatch.Delay = 0
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 10 << 20
	}
	if c.HTTP.SSEKeepAlive <= 0 {
		c.HTTP.SSEKeepAlive = 15 * time.Second
	}
	if c.Limits.Burst < 1 {
		c.Limits.Burst = 1
	}
	if c.Registry.PruneInterval < 0 {
		c.Registry.PruneInterval = 0
	}
	c.Store.Backend = StoreBackend(strings.ToLower(strings.TrimSpace(string(c.Store.Backend))))
	c.Auth.Mode = AuthMode(strings.ToLower(strings.TrimSpace(string(c.Auth.Mode))))
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Auth.Mode {
	case AuthModeOIDC:
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			return errors.New("OIDC_ISSUER and OIDC_CLIENT_ID are required when AUTH_MODE=oidc")
		}
	case AuthModeMock:
		if strings.TrimSpace(c.Auth.DevTokens) == "" {
			return errors.New("DEV_AUTH_TOKENS is required when AUTH_MODE=mock")
		}
	default:
		return fmt.Errorf("invalid AUTH_MODE %q", c.Auth.Mode)
	}
	if c.Broker.WorkTopic == "" || c.Broker.ResultTopic == "" {
		return errors.New("broker topics must not be empty")
	}
	return nil
}
