// Package dlq provides dead-letter queue functionality for failed messages
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the producer needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes dead-letter records to the DLQ topic.
// A failed publish is logged and the record dropped; the caller is never blocked on it.
type Producer struct {
	writer  MessageWriter
	logger  *zap.Logger
	metrics *obs.Metrics
	topic   string
	now     func() time.Time
}

// NewProducer creates a DLQ producer backed by a kafka-go writer
func NewProducer(cfg *config.Config, logger *zap.Logger, metrics *obs.Metrics) (*Producer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	// Send writes one record per call, so the writer must not wait to fill a batch
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.DLQ.Brokers...),
		Topic:                  cfg.DLQ.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchSize:              1,
		BatchTimeout:           5 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}

	return NewProducerWithWriter(writer, cfg.DLQ.Topic, logger, metrics)
}

// NewProducerWithWriter creates a DLQ producer over an existing writer
func NewProducerWithWriter(writer MessageWriter, topic string, logger *zap.Logger, metrics *obs.Metrics) (*Producer, error) {
	if writer == nil {
		return nil, fmt.Errorf("writer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Producer{
		writer:  writer,
		logger:  logger,
		metrics: metrics,
		topic:   topic,
		now:     time.Now,
	}, nil
}

// Send publishes one dead-letter record keyed by tenant.
// Every call produces its own record; identical inputs are not deduplicated.
func (p *Producer) Send(ctx context.Context, original []byte, reason, tenantID string) {
	if tenantID == "" {
		tenantID = types.TenantUnknown
	}
	record := types.DeadLetter{
		FailedAt: p.now().UTC().Format(time.RFC3339Nano),
		Reason:   reason,
		Original: string(original),
		TenantID: tenantID,
	}

	value, err := json.Marshal(record)
	if err != nil {
		p.drop(tenantID, reason, fmt.Errorf("marshal dead letter: %w", err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(tenantID),
		Value: value,
		Time:  p.now(),
	}

	// We rely on the kafka-go writer to handle the timeouts.
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.drop(tenantID, reason, err)
		return
	}

	p.logger.Info("Message published to DLQ",
		zap.String("dlq_topic", p.topic),
		zap.String("tenant_id", tenantID),
		zap.String("reason", reason),
	)
}

func (p *Producer) drop(tenantID, reason string, err error) {
	p.metrics.IncrementDLQPublishFailures()
	p.logger.Error("Failed to publish message to DLQ, dropping",
		zap.String("dlq_topic", p.topic),
		zap.String("tenant_id", tenantID),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

// Close closes the DLQ producer and releases resources
func (p *Producer) Close() error {
	if p.writer != nil {
		p.logger.Info("Closing DLQ producer")
		return p.writer.Close()
	}
	return nil
}
