// Package config loads process configuration from TREASURY_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. TREASURY_SERVER_ADDR.
const EnvPrefix = "TREASURY"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Audit sinks.
const (
	AuditSinkMemory = "memory"
	AuditSinkKafka  = "kafka"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Log       Log
	Storage   Storage
	Redis     RedisConfig
	Postgres  Postgres
	Auth      Auth
	Ledger    Ledger
	Vault     Vault
	Audit     Audit
	Metrics   Metrics
	RateLimit RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

type Storage struct {
	Backend string
	// KeyPrefix namespaces vault keys in shared backends.
	KeyPrefix string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Postgres struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Auth configures bearer token verification.
type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
}

// Ledger configures the wall-time tick source.
type Ledger struct {
	Genesis      time.Time
	TickDuration time.Duration
}

type Vault struct {
	// Account is the ledger identity disbursements are paid from.
	Account               string
	ProposalLifetimeTicks uint64
	RecurringInterval     time.Duration
	// Balances seeds the built-in asset ledger as token=amount pairs.
	Balances map[string]string
}

type Audit struct {
	Sink         string
	AsyncBuffer  int
	KafkaBrokers []string
	KafkaTopic   string
}

type Metrics struct {
	Enabled bool
}

// RateLimit bounds API requests per caller over a sliding window.
type RateLimit struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

const devSigningKey = "dev-secret-key-change-in-production"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.key_prefix", "treasury:")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)

	v.SetDefault("auth.jwt_signing_key", devSigningKey)
	v.SetDefault("auth.issuer", "treasury")
	v.SetDefault("auth.audience", "treasury-api")
	v.SetDefault("auth.token_ttl", 15*time.Minute)

	v.SetDefault("ledger.genesis", "2024-01-01T00:00:00Z")
	v.SetDefault("ledger.tick_duration", 5*time.Second)

	v.SetDefault("vault.account", "GTREASURY")
	v.SetDefault("vault.proposal_lifetime_ticks", uint64(7*17280))
	v.SetDefault("vault.recurring_interval", 30*time.Second)
	v.SetDefault("vault.balances", "")

	v.SetDefault("audit.sink", AuditSinkMemory)
	v.SetDefault("audit.async_buffer", 0)
	v.SetDefault("audit.kafka_brokers", "")
	v.SetDefault("audit.kafka_topic", "treasury.audit")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", time.Minute)
}

// FromEnv builds a Config from TREASURY_* variables. When TREASURY_CONFIG_FILE
// is set the file is read first and the environment overrides it.
func FromEnv() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	genesis, err := time.Parse(time.RFC3339, v.GetString("ledger.genesis"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ledger genesis: %w", err)
	}
	balances, err := parsePairs(v.GetString("vault.balances"))
	if err != nil {
		return Config{}, fmt.Errorf("parse vault balances: %w", err)
	}

	cfg := Config{
		Server: Server{
			Addr:            v.GetString("server.addr"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Storage: Storage{
			Backend:   strings.ToLower(v.GetString("storage.backend")),
			KeyPrefix: v.GetString("storage.key_prefix"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Postgres: Postgres{
			DSN:          v.GetString("postgres.dsn"),
			MaxOpenConns: v.GetInt("postgres.max_open_conns"),
			MaxIdleConns: v.GetInt("postgres.max_idle_conns"),
		},
		Auth: Auth{
			JWTSigningKey: v.GetString("auth.jwt_signing_key"),
			Issuer:        v.GetString("auth.issuer"),
			Audience:      v.GetString("auth.audience"),
			TokenTTL:      v.GetDuration("auth.token_ttl"),
		},
		Ledger: Ledger{
			Genesis:      genesis,
			TickDuration: v.GetDuration("ledger.tick_duration"),
		},
		Vault: Vault{
			Account:               v.GetString("vault.account"),
			ProposalLifetimeTicks: v.GetUint64("vault.proposal_lifetime_ticks"),
			RecurringInterval:     v.GetDuration("vault.recurring_interval"),
			Balances:              balances,
		},
		Audit: Audit{
			Sink:         strings.ToLower(v.GetString("audit.sink")),
			AsyncBuffer:  v.GetInt("audit.async_buffer"),
			KafkaBrokers: splitList(v.GetString("audit.kafka_brokers")),
			KafkaTopic:   v.GetString("audit.kafka_topic"),
		},
		Metrics: Metrics{
			Enabled: v.GetBool("metrics.enabled"),
		},
		RateLimit: RateLimit{
			Enabled:  v.GetBool("rate_limit.enabled"),
			Requests: v.GetInt("rate_limit.requests"),
			Window:   v.GetDuration("rate_limit.window"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis backend requires TREASURY_REDIS_URL"))
		}
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres backend requires TREASURY_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	switch c.Audit.Sink {
	case AuditSinkMemory:
	case AuditSinkKafka:
		if len(c.Audit.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka audit sink requires TREASURY_AUDIT_KAFKA_BROKERS"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit sink %q", c.Audit.Sink))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("jwt signing key is required"))
	}
	if c.Vault.ProposalLifetimeTicks == 0 {
		errs = append(errs, errors.New("proposal lifetime must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit requires positive requests and window"))
	}
	return errors.Join(errs...)
}

// UsesDevSigningKey reports whether the built-in development key is active.
func (c Config) UsesDevSigningKey() bool {
	return c.Auth.JWTSigningKey == devSigningKey
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePairs reads "a=1,b=2".
func parsePairs(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range splitList(raw) {
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("malformed pair %q", part)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
