package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/admin"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/consumer"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/dlq"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/lag"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/logger"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/pipeline"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const lagQueryTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume events, run the ingestion pipeline and serve the admin API",
		Long: `Start the event processor.

Events are consumed from KAFKA_TOPIC by group KAFKA_GROUP_ID, processed one at a time per
partition and committed after they are stored or dead-lettered. The admin API listens on
ADMIN_PORT and Prometheus metrics on METRICS_PORT. SIGINT or SIGTERM drains in-flight work.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting event processor",
		zap.String("version", Version),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("dlqTopic", cfg.DLQ.Topic),
		zap.String("storeDriver", cfg.Store.Driver),
	)

	metrics := obs.NewMetrics(cfg.Service.Name, prometheus.DefaultRegisterer)

	eventStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := eventStore.Close(); err != nil {
			log.Error("Failed to close event store", zap.Error(err))
		}
	}()

	responseCache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	dlqProducer, err := dlq.NewProducer(cfg, log, metrics)
	if err != nil {
		return fmt.Errorf("failed to create DLQ producer: %w", err)
	}
	defer func() {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Failed to close DLQ producer", zap.Error(err))
		}
	}()

	p, err := pipeline.New(
		pipeline.NewValidator(pipeline.DefaultSchemaVersions...),
		pipeline.NewEnricher(log, nil, payloadFieldsStep),
		pipeline.NewWriter(eventStore, log, nil),
		dlqProducer,
		metrics,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	kafkaConsumer, err := consumer.NewConsumer(cfg, log, metrics)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	pool, err := worker.NewPool(cfg.Worker.Count, cfg.Worker.QueueSize, p, kafkaConsumer, metrics, log)
	if err != nil {
		_ = kafkaConsumer.Close()
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	// workers outlive the signal context so Stop can drain them
	if err := pool.Start(context.Background()); err != nil {
		_ = kafkaConsumer.Close()
		return err
	}

	monitor := lag.NewMonitor(
		lag.NewKafkaSource(cfg.Kafka.Brokers, []string{cfg.Kafka.Topic}, lagQueryTimeout),
		cfg.Lag.WarnThreshold,
		metrics,
		log,
	)
	sampler := dlq.NewSampler(cfg.DLQ.Brokers, cfg.DLQ.Topic, cfg.DLQ.SampleTimeout, log)
	handlers, err := admin.NewHandlers(eventStore, monitor, sampler, responseCache, cfg.Kafka.GroupID, log)
	if err != nil {
		_ = pool.Stop()
		_ = kafkaConsumer.Close()
		return fmt.Errorf("failed to create admin handlers: %w", err)
	}

	serverCtx, stopServers := context.WithCancel(context.Background())
	serverErrs := make(chan error, 2)
	go func() {
		serverErrs <- obs.Serve(serverCtx, "admin", cfg.Admin.Port, admin.NewRouter(handlers, log), log)
	}()
	go func() {
		serverErrs <- obs.StartMetricsServer(serverCtx, cfg.Metrics.Port, log)
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- kafkaConsumer.Run(ctx, pool)
	}()

	var fatal error
	servers := 2
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			fatal = err
		}
	case err := <-serverErrs:
		servers--
		fatal = err
		stop()
		<-runErr
	}
	if fatal != nil {
		log.Error("Event processor failed", zap.Error(fatal))
	} else {
		log.Info("Shutdown signal received, draining")
	}

	// Fetching has stopped: finish in-flight messages, then flush their commits
	if err := pool.Stop(); err != nil {
		log.Error("Failed to stop worker pool", zap.Error(err))
	}
	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Failed to close consumer", zap.Error(err))
	}

	stopServers()
	for range servers {
		if err := <-serverErrs; err != nil && fatal == nil {
			log.Error("HTTP server stopped with error", zap.Error(err))
		}
	}

	if fatal != nil {
		return fatal
	}
	log.Info("Event processor stopped")
	return nil
}
