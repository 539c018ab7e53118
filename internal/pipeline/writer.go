package pipeline

import (
	"context"
	"maps"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persister stores one record atomically
type Persister interface {
	Put(ctx context.Context, rec *types.Record) error
}

// Writer turns enriched envelopes into stored records.
type Writer struct {
	store  Persister
	now    func() time.Time
	logger *zap.Logger
}

// NewWriter creates a store writer. A nil clock uses time.Now.
func NewWriter(store Persister, logger *zap.Logger, now func() time.Time) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Writer{store: store, now: now, logger: logger}
}

// Write builds the record for env and persists it. Any store error is returned as is.
func (w *Writer) Write(ctx context.Context, env *types.EnrichedEnvelope) (*types.Record, error) {
	rec := w.BuildRecord(env)
	if err := w.store.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// BuildRecord maps an enriched envelope to a record with a fresh id.
// Unparsable occurred_at or received_at values are replaced by the current time.
func (w *Writer) BuildRecord(env *types.EnrichedEnvelope) *types.Record {
	ev := env.Event
	return &types.Record{
		ID:             uuid.New(),
		TenantID:       env.TenantID,
		EventID:        ev.EventID,
		IdempotencyKey: env.IdempotencyKey,
		EventType:      ev.EventType,
		SchemaVersion:  *ev.SchemaVersion,
		OccurredAt:     w.parseOrNow("occurred_at", ev.OccurredAt, env),
		ReceivedAt:     w.parseOrNow("received_at", env.ReceivedAt, env),
		ProcessedAt:    env.ProcessedAt,
		Payload:        maps.Clone(ev.Payload),
		Status:         types.StatusProcessed,
	}
}

func (w *Writer) parseOrNow(field, value string, env *types.EnrichedEnvelope) time.Time {
	t, err := ParseTimestamp(value)
	if err == nil {
		return t.UTC()
	}
	w.logger.Warn("Failed to parse timestamp, using current time",
		zap.String("field", field),
		zap.String("tenant_id", env.TenantID),
		zap.String("event_id", env.Event.EventID),
		zap.Error(err),
	)
	return w.now().UTC()
}
