// Command producer generates inbound envelopes for load-testing the event processor.
// Valid, duplicate and invalid envelopes are mixed according to the given ratios.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	brokers        string
	topic          string
	batchSize      int
	rate           int
	duration       time.Duration
	tenants        int
	invalidRatio   float64
	duplicateRatio float64
	seed           int64
)

func init() {
	// Try to load .env file (optional)
	godotenv.Load()

	flag.StringVar(&brokers, "brokers", getEnv("KAFKA_BROKERS", "localhost:9092"), "Kafka broker addresses (comma-separated)")
	flag.StringVar(&topic, "topic", getEnv("KAFKA_TOPIC", "events.raw"), "Kafka topic name")
	flag.IntVar(&batchSize, "batch", 1000, "Number of messages to produce (0 = infinite)")
	flag.IntVar(&rate, "rate", 0, "Messages per second (0 = as fast as possible)")
	flag.DurationVar(&duration, "duration", 0, "Duration to run (e.g., 30s, 5m). If set, overrides batch")
	flag.IntVar(&tenants, "tenants", 5, "Number of distinct tenants")
	flag.Float64Var(&invalidRatio, "invalid", 0.1, "Share of invalid or malformed messages")
	flag.Float64Var(&duplicateRatio, "duplicates", 0.05, "Share of messages reusing an idempotency key")
	flag.Int64Var(&seed, "seed", 0, "Random seed (0 = random)")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if tenants <= 0 || invalidRatio < 0 || duplicateRatio < 0 || invalidRatio+duplicateRatio > 1 {
		logger.Fatal("Invalid flags: tenants must be positive and ratios must sum to at most 1")
	}

	brokerList := strings.Split(brokers, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	// Keys are tenant ids, so a tenant's events stay on one partition
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerList...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", brokerList),
		zap.String("topic", topic),
		zap.Int("tenants", tenants),
		zap.Float64("invalidRatio", invalidRatio),
		zap.Float64("duplicateRatio", duplicateRatio),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	limit := batchSize
	if duration > 0 {
		limit = 0
	}
	produced := produce(ctx, writer, newGenerator(seed, tenants, invalidRatio, duplicateRatio), limit, rate, logger)
	logger.Info("Producer stopped", zap.Int("total_produced", produced))
}

// produce writes messages until ctx is done or limit messages were written (limit 0 = no limit)
func produce(ctx context.Context, writer *kafka.Writer, gen *generator, limit, rate int, logger *zap.Logger) int {
	var ticker *time.Ticker
	if rate > 0 {
		ticker = time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
	}

	produced := 0
	for limit == 0 || produced < limit {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return produced
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return produced
		}

		key, value, err := gen.next(time.Now())
		if err != nil {
			logger.Error("Failed to generate message", zap.Error(err))
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(key), Value: value})
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return produced
			}
			logger.Error("Failed to produce message", zap.Error(err))
			continue
		}

		produced++
		if produced%100 == 0 {
			logger.Info("Produced messages", zap.Int("count", produced))
		}
	}
	return produced
}
