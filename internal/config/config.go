package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Delivery DeliveryConfig
	Sync     SyncConfig
	Kafka    KafkaConfig
	Webhook  WebhookConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	BodyLimitBytes        int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Enabled   bool
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines operator authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// StorageConfig locates attachment storage.
type StorageConfig struct {
	RootDir       string
	PublicBaseURL string
}

// DeliveryConfig tunes the delivery job runner.
type DeliveryConfig struct {
	Workers               int
	PollIntervalMillis    int
	AttemptTimeoutSeconds int
	MessageIDDomain       string
}

// SyncConfig tunes pull-based channel synchronization.
type SyncConfig struct {
	Schedule       string
	Concurrency    int
	LockTTLSeconds int
}

// KafkaConfig enables the domain event sink.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// WebhookConfig holds outbound webhook defaults.
type WebhookConfig struct {
	UserAgent string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "conversation-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			BodyLimitBytes:        getEnvAsInt("HTTP_BODY_LIMIT_BYTES", 25*1024*1024),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "internal/repository/migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			Enabled:   getEnvAsBool("REDIS_ENABLED", true),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "conv"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Storage: StorageConfig{
			RootDir:       getEnv("STORAGE_ROOT", "./data/storage"),
			PublicBaseURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_URL", "http://localhost:8080/storage"), "/"),
		},
		Delivery: DeliveryConfig{
			Workers:               getEnvAsInt("DELIVERY_WORKERS", 4),
			PollIntervalMillis:    getEnvAsInt("DELIVERY_POLL_INTERVAL_MS", 500),
			AttemptTimeoutSeconds: getEnvAsInt("DELIVERY_ATTEMPT_TIMEOUT_SECONDS", 10),
			MessageIDDomain:       getEnv("DELIVERY_MESSAGE_ID_DOMAIN", "conversation.local"),
		},
		Sync: SyncConfig{
			Schedule:       getEnv("SYNC_SCHEDULE", "@every 1m"),
			Concurrency:    getEnvAsInt("SYNC_CONCURRENCY", 4),
			LockTTLSeconds: getEnvAsInt("SYNC_LOCK_TTL_SECONDS", 300),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
			Brokers: getEnvAsList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "conversation-events"),
		},
		Webhook: WebhookConfig{
			UserAgent: getEnv("WEBHOOK_USER_AGENT", "conversation-service-webhooks/1.0"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns how often idle delivery workers poll the queue.
func (d DeliveryConfig) PollInterval() time.Duration {
	if d.PollIntervalMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(d.PollIntervalMillis) * time.Millisecond
}

// AttemptTimeout returns the per-attempt network timeout.
func (d DeliveryConfig) AttemptTimeout() time.Duration {
	if d.AttemptTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.AttemptTimeoutSeconds) * time.Second
}

// LockTTL returns how long a channel sync lock is held at most.
func (s SyncConfig) LockTTL() time.Duration {
	if s.LockTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.LockTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
