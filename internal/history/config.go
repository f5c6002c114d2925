package history

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"holders-backend/internal/utils"
)

// Backend names accepted in Config.Backend
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"-" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"-" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"sslMode" yaml:"ssl_mode"`
}

// DSN returns the lib/pq connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// Config holds history persistence configuration
type Config struct {
	Backend    string         `json:"backend" yaml:"backend"` // memory, redis, sqlite or postgres
	Redis      RedisConfig    `json:"redis" yaml:"redis"`
	SQLitePath string         `json:"sqlitePath" yaml:"sqlite_path"`
	Postgres   PostgresConfig `json:"postgres" yaml:"postgres"`
	DSN        string         `json:"-" yaml:"dsn"` // overrides SQLitePath or Postgres when set
}

// DefaultConfig returns default history configuration. PostgreSQL settings
// come from DB_* environment variables with local fallbacks.
func DefaultConfig() Config {
	port := 5432
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		if parsed, err := strconv.Atoi(portStr); err == nil {
			port = parsed
		}
	}

	return Config{
		Backend: BackendMemory,
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  DefaultRedisKey,
		},
		SQLitePath: "holders.db",
		Postgres: PostgresConfig{
			Host:     envOr("DB_HOST", "localhost"),
			Port:     port,
			User:     envOr("DB_USER", "holders"),
			Password: envOr("DB_PASSWORD", "holders"),
			Database: envOr("DB_NAME", "holders"),
			SSLMode:  envOr("DB_SSLMODE", "disable"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Open creates the store selected by cfg.Backend
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		store, err := NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Redis.Key)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.SQLitePath
		}
		return openSQL(ctx, "sqlite3", dsn)
	case BackendPostgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Postgres.DSN()
		}
		return openSQL(ctx, "postgres", dsn)
	default:
		return nil, utils.NewAppError(utils.ErrorTypeConfig, "BAD_BACKEND", "unknown history backend", "HISTORY").
			WithDetails(cfg.Backend)
	}
}

func openSQL(ctx context.Context, driver, dsn string) (Store, error) {
	store, err := NewSQLStore(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return store, nil
}
