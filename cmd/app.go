package main

import (
	"context"
	"fmt"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/cache"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/logger"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/pipeline"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/retry"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store/postgres"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store/sqlite"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"go.uber.org/zap"
)

// setup loads the configuration and initializes the global logger
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Service.Name); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Logger, nil
}

// openStore opens the configured event store, retrying the connection with backoff
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	notify := func(attempt int, err error) {
		log.Warn("Event store connection failed, retrying",
			zap.String("driver", cfg.Store.Driver),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		if cfg.Store.Migrate {
			if err := postgres.Migrate(cfg.Store.PostgresDSN); err != nil {
				return nil, err
			}
			log.Info("Database migrations applied")
		}
		var st *postgres.Store
		err := retry.DoWithNotify(ctx, &cfg.Retry, func() error {
			var err error
			st, err = postgres.Connect(ctx, cfg.Store.PostgresDSN)
			return err
		}, notify)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		log.Info("Connected to event store", zap.String("driver", cfg.Store.Driver))
		return st, nil

	case config.StoreDriverSQLite:
		st, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("Opened event store", zap.String("driver", cfg.Store.Driver), zap.String("path", cfg.Store.SQLitePath))
		return st, nil

	case config.StoreDriverMemory:
		log.Warn("Using in-memory event store, events are lost on restart")
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
}

// openCache connects the admin response cache. Caching is disabled when no address is
// configured or Redis is unreachable at startup.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (*cache.Cache, func()) {
	if cfg.Redis.Addr == "" {
		return cache.New(nil, 0, log), func() {}
	}
	client, err := cache.NewClient(ctx, cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn("Redis unavailable, admin cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		return cache.New(nil, 0, log), func() {}
	}
	log.Info("Admin cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.CacheTTL))
	return cache.New(client, cfg.Redis.CacheTTL, log), func() { _ = client.Close() }
}

// payloadFieldsStep records the number of top-level payload fields
var payloadFieldsStep = pipeline.StepFunc{
	StepName: "payload_fields",
	Fn: func(_ context.Context, env *types.Envelope, derived map[string]any) error {
		if env.Event == nil {
			return fmt.Errorf("envelope has no event")
		}
		derived["payload_fields"] = len(env.Event.Payload)
		return nil
	},
}
