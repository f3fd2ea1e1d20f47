// Package config loads npcd configuration from YAML, a .env file and the
// process environment, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Ledger backends.
const (
	LedgerRPC       = "rpc"
	LedgerSimulated = "simulated"
)

// Projection backends.
const (
	ProjectionMemory   = "memory"
	ProjectionRedis    = "redis"
	ProjectionPostgres = "postgres"
	ProjectionSQLite   = "sqlite"
)

// Subscriber modes.
const (
	SubscriberPoll = "poll"
	SubscriberWS   = "ws"
	SubscriberOff  = "off"
)

// Config is the top-level configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Auth           AuthConfig           `yaml:"auth"`
	Ledger         LedgerConfig         `yaml:"ledger"`
	Projection     ProjectionConfig     `yaml:"projection"`
	Identity       IdentityConfig       `yaml:"identity"`
	Reconciliation ReconciliationConfig `yaml:"reconciliation"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CORS           CORSConfig           `yaml:"cors"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"NPC_SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"NPC_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"NPC_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"NPC_SERVER_SHUTDOWN_TIMEOUT"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"NPC_LOG_LEVEL"`
	Format string `yaml:"format" env:"NPC_LOG_FORMAT"`
}

// AuthConfig configures JWT validation. With Enabled false the acting user
// is taken from the X-User-ID header (development only).
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled" env:"NPC_AUTH_ENABLED"`
	PublicKeyPath string `yaml:"public_key_path" env:"NPC_AUTH_PUBLIC_KEY_PATH"`
	Issuer        string `yaml:"issuer" env:"NPC_AUTH_ISSUER"`
	Audience      string `yaml:"audience" env:"NPC_AUTH_AUDIENCE"`
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	Backend          string        `yaml:"backend" env:"NPC_LEDGER_BACKEND"`
	RPCURL           string        `yaml:"rpc_url" env:"NPC_LEDGER_RPC_URL"`
	WSURL            string        `yaml:"ws_url" env:"NPC_LEDGER_WS_URL"`
	NetworkMagic     uint32        `yaml:"network_magic" env:"NPC_LEDGER_NETWORK_MAGIC"`
	SignerKey        string        `yaml:"signer_key" env:"NPC_LEDGER_SIGNER_KEY"`
	AccountsHash     string        `yaml:"accounts_hash" env:"NPC_CONTRACT_ACCOUNTS"`
	VerificationHash string        `yaml:"verification_hash" env:"NPC_CONTRACT_VERIFICATION"`
	CreditsHash      string        `yaml:"credits_hash" env:"NPC_CONTRACT_CREDITS"`
	FinalityTimeout  time.Duration `yaml:"finality_timeout" env:"NPC_LEDGER_FINALITY_TIMEOUT"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"NPC_LEDGER_POLL_INTERVAL"`
	ValidBlocks      uint32        `yaml:"valid_blocks" env:"NPC_LEDGER_VALID_BLOCKS"`
	SubscriberMode   string        `yaml:"subscriber_mode" env:"NPC_LEDGER_SUBSCRIBER_MODE"`
}

// ProjectionConfig selects and configures the projection store.
type ProjectionConfig struct {
	Backend     string `yaml:"backend" env:"NPC_PROJECTION_BACKEND"`
	RedisAddr   string `yaml:"redis_addr" env:"NPC_PROJECTION_REDIS_ADDR"`
	RedisDB     int    `yaml:"redis_db" env:"NPC_PROJECTION_REDIS_DB"`
	PostgresDSN string `yaml:"postgres_dsn" env:"NPC_PROJECTION_POSTGRES_DSN"`
	SQLitePath  string `yaml:"sqlite_path" env:"NPC_PROJECTION_SQLITE_PATH"`
	Migrate     bool   `yaml:"migrate" env:"NPC_PROJECTION_MIGRATE"`

	MaxRetries       int           `yaml:"max_retries" env:"NPC_PROJECTION_MAX_RETRIES"`
	RetryDelay       time.Duration `yaml:"retry_delay" env:"NPC_PROJECTION_RETRY_DELAY"`
	BreakerThreshold int           `yaml:"breaker_threshold" env:"NPC_PROJECTION_BREAKER_THRESHOLD"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" env:"NPC_PROJECTION_BREAKER_COOLDOWN"`
}

type IdentityConfig struct {
	BaseURL string        `yaml:"base_url" env:"NPC_IDENTITY_BASE_URL"`
	Token   string        `yaml:"token" env:"NPC_IDENTITY_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env:"NPC_IDENTITY_TIMEOUT"`
	// Verified is a comma-separated allow list used when BaseURL is empty.
	Verified string `yaml:"verified" env:"NPC_IDENTITY_VERIFIED"`
}

// ReconciliationConfig holds cron specs for the background repair and audit jobs.
type ReconciliationConfig struct {
	RepairSchedule string `yaml:"repair_schedule" env:"NPC_RECONCILE_REPAIR_SCHEDULE"`
	AuditSchedule  string `yaml:"audit_schedule" env:"NPC_RECONCILE_AUDIT_SCHEDULE"`
	MaxAttempts    int    `yaml:"max_attempts" env:"NPC_RECONCILE_MAX_ATTEMPTS"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"NPC_RATE_LIMIT_RPS"`
	Burst             int     `yaml:"burst" env:"NPC_RATE_LIMIT_BURST"`
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins" env:"NPC_CORS_ALLOWED_ORIGINS"`
}

// Default returns a configuration suitable for local development: simulated
// ledger, in-memory projection, auth disabled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Ledger: LedgerConfig{
			Backend:         LedgerSimulated,
			NetworkMagic:    894710606,
			FinalityTimeout: 60 * time.Second,
			PollInterval:    time.Second,
			ValidBlocks:     100,
			SubscriberMode:  SubscriberPoll,
		},
		Projection: ProjectionConfig{
			Backend:          ProjectionMemory,
			MaxRetries:       3,
			RetryDelay:       100 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Identity: IdentityConfig{Timeout: 10 * time.Second},
		Reconciliation: ReconciliationConfig{
			RepairSchedule: "@every 1m",
			AuditSchedule:  "@every 15m",
			MaxAttempts:    10,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		CORS:      CORSConfig{AllowedOrigins: "*"},
	}
}

// Load reads the YAML file at path over the defaults, then overlays the
// .env file next to it (if any) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := applyEnv(cfg, filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults plus environment when
// the file does not exist. Parse and validation errors are still returned.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := Default()
	if err := applyEnv(cfg, ".env"); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		// godotenv.Load never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env (%s): %w", envFile, err)
		}
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}

// Validate rejects inconsistent combinations.
func (c *Config) Validate() error {
	switch c.Ledger.Backend {
	case LedgerSimulated:
	case LedgerRPC:
		if c.Ledger.RPCURL == "" {
			return fmt.Errorf("ledger: rpc_url is required for the rpc backend")
		}
		if c.Ledger.SignerKey == "" {
			return fmt.Errorf("ledger: signer_key is required for the rpc backend")
		}
		if c.Ledger.AccountsHash == "" || c.Ledger.VerificationHash == "" || c.Ledger.CreditsHash == "" {
			return fmt.Errorf("ledger: all three contract hashes are required for the rpc backend")
		}
	default:
		return fmt.Errorf("ledger: unknown backend %q", c.Ledger.Backend)
	}

	switch c.Ledger.SubscriberMode {
	case SubscriberPoll, SubscriberOff:
	case SubscriberWS:
		if c.Ledger.Backend == LedgerRPC && c.Ledger.WSURL == "" {
			return fmt.Errorf("ledger: ws_url is required for the ws subscriber")
		}
	default:
		return fmt.Errorf("ledger: unknown subscriber mode %q", c.Ledger.SubscriberMode)
	}

	if c.Ledger.FinalityTimeout <= 0 {
		return fmt.Errorf("ledger: finality_timeout must be positive")
	}

	switch c.Projection.Backend {
	case ProjectionMemory:
	case ProjectionRedis:
		if c.Projection.RedisAddr == "" {
			return fmt.Errorf("projection: redis_addr is required for the redis backend")
		}
	case ProjectionPostgres:
		if c.Projection.PostgresDSN == "" {
			return fmt.Errorf("projection: postgres_dsn is required for the postgres backend")
		}
	case ProjectionSQLite:
		if c.Projection.SQLitePath == "" {
			return fmt.Errorf("projection: sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("projection: unknown backend %q", c.Projection.Backend)
	}

	if c.Auth.Enabled && c.Auth.PublicKeyPath == "" {
		return fmt.Errorf("auth: public_key_path is required when auth is enabled")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	return nil
}

// VerifiedAccounts returns the static identity allow list.
func (c IdentityConfig) VerifiedAccounts() []string {
	return SplitList(c.Verified)
}

// Origins returns the configured CORS origins.
func (c CORSConfig) Origins() []string {
	return SplitList(c.AllowedOrigins)
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
