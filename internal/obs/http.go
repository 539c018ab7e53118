package obs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StartMetricsServer starts an HTTP server that exposes Prometheus metrics on /metrics
// and a liveness check on /healthz. It blocks until ctx is cancelled.
func StartMetricsServer(ctx context.Context, port string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return Serve(ctx, "metrics", port, mux, logger)
}

// Serve runs handler on port until ctx is cancelled, then shuts the server down gracefully.
// name only labels log entries.
func Serve(ctx context.Context, name, port string, handler http.Handler, logger *zap.Logger) error {
	// Validate port
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum <= 0 || portNum > 65535 {
		return fmt.Errorf("invalid port: %s", port)
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("server", name),
			zap.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server", zap.String("server", name))
		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down HTTP server", zap.String("server", name), zap.Error(err))
			return fmt.Errorf("error shutting down %s server: %w", name, err)
		}
		logger.Info("HTTP server stopped gracefully", zap.String("server", name))
		return nil
	case err := <-serverErr:
		return fmt.Errorf("%s server error: %w", name, err)
	}
}
