// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Kafka   KafkaConfig
	DLQ     DLQConfig
	Worker  WorkerConfig
	Retry   RetryConfig
	Store   StoreConfig
	Redis   RedisConfig
	Admin   AdminConfig
	Metrics MetricsConfig
	Lag     LagConfig
	Logging LoggingConfig
	Service ServiceConfig
}

// KafkaConfig holds Kafka connection settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// StartOffset applies when the group has no committed offset: "earliest" or "latest"
	StartOffset string
}

// DLQConfig holds dead-letter topic settings
type DLQConfig struct {
	Brokers       []string
	Topic         string
	SampleTimeout time.Duration
}

// WorkerConfig holds the lane pool settings
type WorkerConfig struct {
	Count     int
	QueueSize int
}

// RetryConfig holds exponential backoff settings
type RetryConfig struct {
	MaxAttempts int
	BaseDelayMs time.Duration
	MaxDelayMs  time.Duration
	Multiplier  float64
}

// StoreConfig selects and configures the event store
type StoreConfig struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
	Migrate     bool
}

// RedisConfig holds the admin cache settings. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// AdminConfig holds admin HTTP API settings
type AdminConfig struct {
	Port string
}

// MetricsConfig holds metrics server settings
type MetricsConfig struct {
	Port string
}

// LagConfig holds lag reporting settings
type LagConfig struct {
	WarnThreshold int64
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service settings
type ServiceConfig struct {
	Name string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}

	// Kafka configuration
	brokers := splitList(os.Getenv("KAFKA_BROKERS"))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS is required")
	}
	cfg.Kafka.Brokers = brokers
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", "events.raw")
	cfg.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", "event-processor")
	cfg.Kafka.StartOffset = strings.ToLower(getEnv("KAFKA_START_OFFSET", "earliest"))
	if cfg.Kafka.StartOffset != "earliest" && cfg.Kafka.StartOffset != "latest" {
		return nil, fmt.Errorf("KAFKA_START_OFFSET must be earliest or latest, got: %s", cfg.Kafka.StartOffset)
	}

	// DLQ configuration
	cfg.DLQ.Topic = getEnv("DLQ_TOPIC", "events.dlq")
	if cfg.DLQ.Topic == cfg.Kafka.Topic {
		return nil, fmt.Errorf("DLQ_TOPIC must differ from KAFKA_TOPIC")
	}
	cfg.DLQ.Brokers = splitList(os.Getenv("DLQ_BROKERS"))
	if len(cfg.DLQ.Brokers) == 0 {
		cfg.DLQ.Brokers = cfg.Kafka.Brokers
	}

	var err error
	if cfg.DLQ.SampleTimeout, err = getEnvDuration("DLQ_SAMPLE_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}

	// Worker configuration
	if cfg.Worker.Count, err = getEnvInt("WORKER_COUNT", 4); err != nil {
		return nil, err
	}
	if cfg.Worker.Count <= 0 {
		return nil, fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	if cfg.Worker.QueueSize, err = getEnvInt("QUEUE_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.Worker.QueueSize <= 0 {
		return nil, fmt.Errorf("QUEUE_SIZE must be greater than 0")
	}

	// Retry configuration
	if cfg.Retry.MaxAttempts, err = getEnvInt("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.Retry.BaseDelayMs, err = getEnvDuration("RETRY_BASE_DELAY", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxDelayMs, err = getEnvDuration("RETRY_MAX_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Retry.Multiplier, err = getEnvFloat("RETRY_MULTIPLIER", 2.0); err != nil {
		return nil, err
	}

	// Store configuration
	cfg.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	cfg.Store.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", "events.db")
	if cfg.Store.Migrate, err = getEnvBool("STORE_MIGRATE", false); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.Store.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER is postgres")
		}
	case StoreDriverSQLite, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.Store.Driver)
	}

	// Redis configuration
	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.CacheTTL, err = getEnvDuration("CACHE_TTL", 2*time.Second); err != nil {
		return nil, err
	}

	// HTTP ports
	cfg.Admin.Port = getEnv("ADMIN_PORT", "8081")
	cfg.Metrics.Port = getEnv("METRICS_PORT", "9090")

	// Lag configuration
	threshold, err := getEnvInt("LAG_WARN_THRESHOLD", 1000)
	if err != nil {
		return nil, err
	}
	cfg.Lag.WarnThreshold = int64(threshold)

	// Logging configuration
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")

	// Service configuration
	cfg.Service.Name = getEnv("SERVICE_NAME", "event-processor")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}

// splitList parses a comma-separated list, dropping empty items
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
