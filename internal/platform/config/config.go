// Package config loads process configuration from the environment.
package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config is the full server configuration.
type Config struct {
	Env      string `env:"PIIVAULT_ENV, default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Crypto    CryptoConfig
	Retention RetentionConfig
	Auth      AuthConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string        `env:"PIIVAULT_ADDR, default=:8080"`
	ReadTimeout    time.Duration `env:"HTTP_READ_TIMEOUT, default=10s"`
	WriteTimeout   time.Duration `env:"HTTP_WRITE_TIMEOUT, default=30s"`
	RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT, default=20s"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE, default=15s"`
	TrustedProxies string        `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig selects postgres. An empty URL runs the in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME, default=5m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE, default=true"`
}

// RedisConfig holds the export cache and purge lock connection. An empty URL
// falls back to in-process implementations.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE, default=10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT, default=3s"`
}

// KafkaConfig configures outbox publication. Empty brokers disable the worker.
type KafkaConfig struct {
	Brokers      string        `env:"KAFKA_BROKERS"`
	AuditTopic   string        `env:"KAFKA_AUDIT_TOPIC, default=piivault.audit-events"`
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL, default=500ms"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE, default=100"`
}

// CryptoConfig carries the key ring. Keys are "version:base64secret" pairs.
type CryptoConfig struct {
	ActiveKeyVersion string            `env:"CRYPTO_ACTIVE_KEY, default=v1"`
	Keys             map[string]string `env:"CRYPTO_KEYS"`
	HMACSecret       string            `env:"CRYPTO_HMAC_SECRET"`
}

// RetentionConfig drives the lifecycle manager and purge worker.
type RetentionConfig struct {
	UserRetentionDays     int           `env:"USER_RETENTION_DAYS, default=90"`
	PurgeMinRetentionDays int           `env:"PURGE_MIN_RETENTION_DAYS, default=30"`
	AuditRetention        time.Duration `env:"AUDIT_RETENTION, default=0s"`
	PurgeInterval         time.Duration `env:"PURGE_INTERVAL, default=1h"`
	PurgeBatchSize        int           `env:"PURGE_BATCH_SIZE, default=100"`
	PurgeConcurrency      int           `env:"PURGE_CONCURRENCY, default=4"`
	DeletionClaimTTL      time.Duration `env:"DELETION_CLAIM_TTL, default=15m"`
	ExportTTL             time.Duration `env:"EXPORT_TTL, default=24h"`
}

// AuthConfig validates caller tokens issued by the platform gateway.
type AuthConfig struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY"`
	Issuer        string        `env:"JWT_ISSUER, default=piivault-gateway"`
	Audience      string        `env:"JWT_AUDIENCE, default=piivault"`
	TokenTTL      time.Duration `env:"TOKEN_TTL, default=15m"`
}

const devSigningKey = "dev-secret-key-change-in-production"

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsDevelopment reports whether insecure defaults are allowed.
func (c *Config) IsDevelopment() bool {
	switch c.Env {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

func (c *Config) validate() error {
	if c.Auth.JWTSigningKey == "" {
		if !c.IsDevelopment() {
			return fmt.Errorf("JWT_SIGNING_KEY is required outside development")
		}
		c.Auth.JWTSigningKey = devSigningKey
	}
	if len(c.Crypto.Keys) == 0 {
		return fmt.Errorf("CRYPTO_KEYS is required")
	}
	if _, ok := c.Crypto.Keys[c.Crypto.ActiveKeyVersion]; !ok {
		return fmt.Errorf("active key %q not present in CRYPTO_KEYS", c.Crypto.ActiveKeyVersion)
	}
	if c.Crypto.HMACSecret == "" {
		return fmt.Errorf("CRYPTO_HMAC_SECRET is required")
	}
	if c.Retention.PurgeMinRetentionDays < 0 || c.Retention.UserRetentionDays < c.Retention.PurgeMinRetentionDays {
		return fmt.Errorf("USER_RETENTION_DAYS must be at least PURGE_MIN_RETENTION_DAYS (%d)", c.Retention.PurgeMinRetentionDays)
	}
	if c.Retention.PurgeConcurrency < 1 {
		c.Retention.PurgeConcurrency = 1
	}
	return nil
}

// KeyMaterial is one decoded key of the ring.
type KeyMaterial struct {
	Version string
	Secret  []byte
}

// DecodedKeys returns the key ring sorted by version with secrets base64-decoded.
func (c CryptoConfig) DecodedKeys() ([]KeyMaterial, error) {
	versions := make([]string, 0, len(c.Keys))
	for v := range c.Keys {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	out := make([]KeyMaterial, 0, len(versions))
	for _, v := range versions {
		secret, err := base64.StdEncoding.DecodeString(c.Keys[v])
		if err != nil {
			return nil, fmt.Errorf("decode key %s: %w", v, err)
		}
		out = append(out, KeyMaterial{Version: v, Secret: secret})
	}
	return out, nil
}

// DecodedHMACSecret returns the base64-decoded HMAC secret.
func (c CryptoConfig) DecodedHMACSecret() ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(c.HMACSecret)
	if err != nil {
		return nil, fmt.Errorf("decode hmac secret: %w", err)
	}
	return secret, nil
}
