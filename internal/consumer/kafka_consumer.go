// Package consumer fetches messages from the inbound topic and commits their offsets
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/retry"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrConsumerClosed is returned by Commit after Close
var ErrConsumerClosed = errors.New("consumer is closed")

// Reader is the part of a kafka-go consumer-group reader the consumer needs
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Dispatcher accepts fetched messages for processing
type Dispatcher interface {
	Submit(ctx context.Context, msg *types.Message) error
}

// Consumer represents a Kafka consumer
type Consumer struct {
	reader     Reader
	logger     *zap.Logger
	metrics    *obs.Metrics
	retry      config.RetryConfig
	commitChan chan kafka.Message
	commitDone chan struct{}
	mu         sync.Mutex
	closed     bool
}

// NewConsumer creates a consumer-group reader for the inbound topic.
// Offsets are only committed explicitly through Commit.
func NewConsumer(cfg *config.Config, logger *zap.Logger, metrics *obs.Metrics) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	startOffset := kafka.FirstOffset
	if cfg.Kafka.StartOffset == "latest" {
		startOffset = kafka.LastOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // Manual commit only
		StartOffset:    startOffset,
	})

	c, err := NewConsumerWithReader(reader, cfg.Retry, logger, metrics)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	logger.Info("Kafka consumer created",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("groupID", cfg.Kafka.GroupID),
		zap.String("startOffset", cfg.Kafka.StartOffset),
	)
	return c, nil
}

// NewConsumerWithReader creates a consumer over an existing reader and starts its commit loop
func NewConsumerWithReader(reader Reader, retryCfg config.RetryConfig, logger *zap.Logger, metrics *obs.Metrics) (*Consumer, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	c := &Consumer{
		reader:     reader,
		logger:     logger,
		metrics:    metrics,
		retry:      retryCfg,
		commitChan: make(chan kafka.Message, 100),
		commitDone: make(chan struct{}),
	}
	go c.commitLoop()
	return c, nil
}

// Run fetches messages and hands them to dispatcher until ctx is cancelled.
// Transient fetch errors are retried with backoff; once retries are exhausted Run returns
// the error and every message not yet committed will be redelivered to the group.
func (c *Consumer) Run(ctx context.Context, dispatcher Dispatcher) error {
	c.logger.Info("Starting Kafka consumer")

	for {
		msg, err := c.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer stopped due to context cancellation")
				return ctx.Err()
			}
			c.logger.Error("Failed to fetch message from Kafka, giving up", zap.Error(err))
			return fmt.Errorf("fetch message: %w", err)
		}
		c.metrics.IncrementMessagesConsumed()

		// Log message metadata only (not content)
		c.logger.Debug("Fetched message",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("keyLength", len(msg.Key)),
			zap.Int("valueLength", len(msg.Value)),
			zap.Time("timestamp", msg.Time),
		)

		// Submit blocks while the partition lane is full (backpressure)
		if err := dispatcher.Submit(ctx, types.NewMessage(msg)); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer stopped due to context cancellation during dispatch")
				return ctx.Err()
			}
			return fmt.Errorf("dispatch message at %s/%d/%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
		}
	}
}

func (c *Consumer) fetch(ctx context.Context) (kafka.Message, error) {
	var msg kafka.Message
	err := retry.DoWithNotify(ctx, &c.retry, func() error {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			// a closed reader or a cancelled context will not recover
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return retry.Permanent(err)
			}
			return err
		}
		msg = m
		return nil
	}, func(attempt int, err error) {
		c.metrics.IncrementRetryAttempts()
		c.logger.Warn("Failed to fetch message from Kafka, retrying",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", c.retry.MaxAttempts),
			zap.Error(err),
		)
	})
	return msg, err
}

// Commit queues the message offset for commit. It is called by the worker after the
// pipeline finished with the message, whatever the outcome.
func (c *Consumer) Commit(ctx context.Context, msg *types.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConsumerClosed
	}
	select {
	case c.commitChan <- msg.Raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commitLoop commits offsets in the order they were queued
func (c *Consumer) commitLoop() {
	// Close the done channel when the function returns to signal that the commit loop has stopped
	defer close(c.commitDone)

	// We use a separate context to ensure that the commit channel will be drained before the consumer is closed
	commitCtx := context.Background()

	// Use a range loop to ensure that the commit channel will be drained before the consumer is closed
	for msg := range c.commitChan {
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			c.logger.Error("Failed to commit offset",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		} else {
			c.logger.Debug("Committed offset",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		}
	}
}

// Close drains pending commits and closes the Kafka reader.
// Call it after the worker pool has stopped so no further commits arrive.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.commitChan)
	c.mu.Unlock()

	<-c.commitDone

	c.logger.Info("Closing Kafka consumer")
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}
	return nil
}
