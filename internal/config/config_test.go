package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092, localhost:9093 ,")
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost:5432/events")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "localhost:9093" {
		t.Errorf("Expected two trimmed brokers, got: %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Topic != "events.raw" {
		t.Errorf("Expected topic events.raw, got: %s", cfg.Kafka.Topic)
	}
	if cfg.Kafka.GroupID != "event-processor" {
		t.Errorf("Expected group event-processor, got: %s", cfg.Kafka.GroupID)
	}
	if cfg.DLQ.Topic != "events.dlq" {
		t.Errorf("Expected DLQ topic events.dlq, got: %s", cfg.DLQ.Topic)
	}
	if len(cfg.DLQ.Brokers) != 2 {
		t.Errorf("Expected DLQ brokers to default to Kafka brokers, got: %v", cfg.DLQ.Brokers)
	}
	if cfg.DLQ.SampleTimeout != 2*time.Second {
		t.Errorf("Expected sample timeout 2s, got: %v", cfg.DLQ.SampleTimeout)
	}
	if cfg.Worker.Count != 4 || cfg.Worker.QueueSize != 100 {
		t.Errorf("Unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.Multiplier != 2.0 {
		t.Errorf("Unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Store.Driver != StoreDriverPostgres {
		t.Errorf("Expected postgres driver, got: %s", cfg.Store.Driver)
	}
	if cfg.Lag.WarnThreshold != 1000 {
		t.Errorf("Expected lag threshold 1000, got: %d", cfg.Lag.WarnThreshold)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("Expected cache disabled by default, got addr: %s", cfg.Redis.Addr)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing_brokers", env: map[string]string{"KAFKA_BROKERS": " , "}},
		{name: "bad_worker_count", env: map[string]string{"WORKER_COUNT": "many"}},
		{name: "zero_worker_count", env: map[string]string{"WORKER_COUNT": "0"}},
		{name: "bad_duration", env: map[string]string{"RETRY_BASE_DELAY": "fast"}},
		{name: "unknown_driver", env: map[string]string{"STORE_DRIVER": "mongo"}},
		{name: "postgres_without_dsn", env: map[string]string{"POSTGRES_DSN": ""}},
		{name: "dlq_same_as_source", env: map[string]string{"DLQ_TOPIC": "events.raw"}},
		{name: "bad_start_offset", env: map[string]string{"KAFKA_START_OFFSET": "middle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Expected error, got nil")
			}
		})
	}
}

func TestLoad_SQLiteWithoutDSN(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/events.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cfg.Store.Driver != StoreDriverSQLite {
		t.Errorf("Expected sqlite driver, got: %s", cfg.Store.Driver)
	}
	if cfg.Store.SQLitePath != "/tmp/events.db" {
		t.Errorf("Expected sqlite path, got: %s", cfg.Store.SQLitePath)
	}
}
