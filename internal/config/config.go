package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	ConnectMaxElapsed  time.Duration
	SlowQueryThreshold time.Duration
	MigrationsPath     string
}

// CacheConfig holds settings for the cache layer. An empty RedisURL or an
// unreachable Redis both select the durable Postgres-backed fallback.
type CacheConfig struct {
	RedisURL     string
	RedisDB      int
	PoolSize     int
	DefaultTTL   time.Duration
	ProbeTimeout time.Duration
	KeyPrefix    string
}

// QueueConfig holds drain worker and retention settings.
type QueueConfig struct {
	DrainInterval   time.Duration
	BatchSize       int
	RetentionDays   int
	CleanupInterval time.Duration
	ImmediateMode   bool
	StatsCacheTTL   time.Duration
}

// AuthConfig holds settings for the admin-actor JWT middleware.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string
	Development bool
}

// Load reads configuration from the environment, preferring a local .env
// file when present.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			GracefulTimeout: getEnvDuration("SERVER_GRACEFUL_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:    getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime:    getEnvDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
			ConnectMaxElapsed:  getEnvDuration("DB_CONNECT_MAX_ELAPSED", 30*time.Second),
			SlowQueryThreshold: getEnvDuration("DB_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
			MigrationsPath:     getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Cache: CacheConfig{
			RedisURL:     getEnv("REDIS_URL", ""),
			RedisDB:      getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DefaultTTL:   getEnvDuration("CACHE_DEFAULT_TTL", time.Hour),
			ProbeTimeout: getEnvDuration("CACHE_PROBE_TIMEOUT", 2*time.Second),
			KeyPrefix:    getEnv("CACHE_KEY_PREFIX", "badgehub"),
		},
		Queue: QueueConfig{
			DrainInterval:   getEnvDuration("QUEUE_DRAIN_INTERVAL", 60*time.Second),
			BatchSize:       getEnvInt("QUEUE_BATCH_SIZE", 50),
			RetentionDays:   getEnvInt("QUEUE_RETENTION_DAYS", 30),
			CleanupInterval: getEnvDuration("QUEUE_CLEANUP_INTERVAL", 24*time.Hour),
			ImmediateMode:   getEnvBool("QUEUE_IMMEDIATE_MODE", false),
			StatsCacheTTL:   getEnvDuration("QUEUE_STATS_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", "badgehub"),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and rejects nonsensical tunables.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.Queue.BatchSize < 1 {
		problems = append(problems, "QUEUE_BATCH_SIZE must be at least 1")
	}
	if c.Queue.DrainInterval < time.Second {
		problems = append(problems, "QUEUE_DRAIN_INTERVAL must be at least 1s")
	}
	if c.Queue.RetentionDays < 1 {
		problems = append(problems, "QUEUE_RETENTION_DAYS must be at least 1")
	}
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required in production")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
