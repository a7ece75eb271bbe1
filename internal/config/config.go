package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	LogLevel  slog.Level
	Server    ServerConfig
	Storage   string
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Auth      AuthConfig
	Ledger    LedgerConfig
	Jobs      JobsConfig
	Bootstrap string
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	NonceTTL  time.Duration
}

type LedgerConfig struct {
	QRSecret        string
	RejectPastStart bool
	MintRateLimit   int
	MintRateWindow  time.Duration
	IdempotencyTTL  time.Duration
}

type JobsConfig struct {
	ReconcileInterval time.Duration
	OutboxInterval    time.Duration
	OutboxBatch       int
}

// New reads configuration from the environment, loading a .env file first
// when one exists.
func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	if cfg.LogLevel, err = logLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Server.Host = getenv("SERVER_HOST", "localhost")
	if cfg.Server.Port, err = atoi("SERVER_PORT", "8080"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Storage = getenv("STORAGE_DRIVER", StoragePostgres)
	switch cfg.Storage {
	case StoragePostgres:
		if cfg.Postgres, err = postgresConfig(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("%s: invalid STORAGE_DRIVER %q", op, cfg.Storage)
	}

	if cfg.Redis.Enabled, err = parseBool("REDIS_ENABLED", "true"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.Redis.Addr = getenv("REDIS_ADDR", "localhost:6380")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = atoi("REDIS_DB", "0"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}
	cfg.Kafka.Topic = getenv("KAFKA_TOPIC", "tixledger.ledger")

	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}
	if cfg.Auth.TokenTTL, err = duration("TOKEN_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Auth.NonceTTL, err = duration("LOGIN_NONCE_TTL", "5m"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Ledger.QRSecret = os.Getenv("QR_SECRET")
	if cfg.Ledger.QRSecret == "" {
		return nil, fmt.Errorf("%s: missing QR_SECRET", op)
	}
	if cfg.Ledger.RejectPastStart, err = parseBool("REJECT_PAST_START", "true"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Ledger.MintRateLimit, err = atoi("MINT_RATE_LIMIT", "10"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Ledger.MintRateWindow, err = duration("MINT_RATE_WINDOW", "1m"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Ledger.IdempotencyTTL, err = duration("IDEMPOTENCY_TTL", "2h"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Jobs.ReconcileInterval, err = duration("RECONCILE_INTERVAL", "5m"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Jobs.OutboxInterval, err = duration("OUTBOX_INTERVAL", "2s"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Jobs.OutboxBatch, err = atoi("OUTBOX_BATCH", "100"); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cfg.Bootstrap = os.Getenv("BOOTSTRAP_FILE")

	return cfg, nil
}

func postgresConfig() (PostgresConfig, error) {
	var (
		c   PostgresConfig
		err error
	)

	c.Host = getenv("POSTGRES_HOST", "localhost")
	if c.Port, err = atoi("POSTGRES_PORT", "5432"); err != nil {
		return c, err
	}

	if c.User = os.Getenv("POSTGRES_USER"); c.User == "" {
		return c, fmt.Errorf("missing POSTGRES_USER")
	}
	if c.Password = os.Getenv("POSTGRES_PASSWORD"); c.Password == "" {
		return c, fmt.Errorf("missing POSTGRES_PASSWORD")
	}
	if c.Name = os.Getenv("POSTGRES_DB"); c.Name == "" {
		return c, fmt.Errorf("missing POSTGRES_DB")
	}

	c.SSLMode = getenv("POSTGRES_SSLMODE", "disable")

	maxConns, err := atoi("POSTGRES_MAX_CONNS", "0")
	if err != nil {
		return c, err
	}
	c.MaxConns = int32(maxConns)

	return c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key, def string) (int, error) {
	v, err := strconv.Atoi(getenv(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseBool(key, def string) (bool, error) {
	v, err := strconv.ParseBool(getenv(key, def))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func duration(key, def string) (time.Duration, error) {
	v, err := time.ParseDuration(getenv(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return v, nil
}

func logLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return l, nil
}
