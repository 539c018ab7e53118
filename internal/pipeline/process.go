package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"go.uber.org/zap"
)

// DeadLetterSender publishes a failed message to the dead-letter topic.
// Implementations handle their own failures; Send never reports back.
type DeadLetterSender interface {
	Send(ctx context.Context, original []byte, reason, tenantID string)
}

// Result is the outcome of processing one message.
// Record is set on success; Err carries the stage error otherwise.
type Result struct {
	Record *types.Record
	Err    error
}

// Category returns the failure category, or "" on success
func (r Result) Category() string { return Category(r.Err) }

// Pipeline runs decode -> validate -> enrich -> persist for one message at a time and
// routes every failure to the dead-letter topic. It is safe for concurrent use.
type Pipeline struct {
	validator *Validator
	enricher  *Enricher
	writer    *Writer
	dlq       DeadLetterSender
	metrics   *obs.Metrics
	logger    *zap.Logger
}

// New wires a pipeline. metrics may be nil.
func New(validator *Validator, enricher *Enricher, writer *Writer, dlq DeadLetterSender, metrics *obs.Metrics, logger *zap.Logger) (*Pipeline, error) {
	if validator == nil || enricher == nil || writer == nil {
		return nil, fmt.Errorf("validator, enricher and writer are required")
	}
	if dlq == nil {
		return nil, fmt.Errorf("dead-letter sender cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Pipeline{
		validator: validator,
		enricher:  enricher,
		writer:    writer,
		dlq:       dlq,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Process handles one raw message. It never panics and never returns an error to the
// caller: failures are dead-lettered and reported in the Result.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (res Result) {
	start := time.Now()
	tenant := types.TenantUnknown

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &ProcessError{Err: fmt.Errorf("panic: %v", r)}}
			p.logger.Error("Recovered from panic in pipeline", zap.Any("panic", r), zap.String("tenant_id", tenant))
		}
		if res.Err != nil {
			p.deadLetter(ctx, raw, res.Err, tenant)
		} else {
			p.metrics.IncrementEventsProcessed()
		}
		p.metrics.ObservePipelineDuration(time.Since(start))
	}()

	env, err := Decode(raw)
	if err != nil {
		tenant = ExtractTenant(raw)
		return Result{Err: err}
	}
	tenant = EnvelopeTenant(env)

	if err := p.validator.Validate(env); err != nil {
		return Result{Err: err}
	}

	enriched := p.enricher.Enrich(ctx, env)

	rec, err := p.writer.Write(ctx, enriched)
	if err != nil {
		return Result{Err: &ProcessError{Err: err}}
	}

	p.logger.Debug("Event stored",
		zap.String("tenant_id", rec.TenantID),
		zap.String("event_id", rec.EventID),
		zap.String("event_type", rec.EventType),
		zap.String("record_id", rec.ID.String()),
	)
	return Result{Record: rec}
}

func (p *Pipeline) deadLetter(ctx context.Context, raw []byte, err error, tenant string) {
	category := Category(err)
	p.logger.Warn("Routing message to DLQ",
		zap.String("category", category),
		zap.String("tenant_id", tenant),
		zap.Int("value_length", len(raw)),
		zap.Error(err),
	)
	p.metrics.IncrementDLQMessages(category)
	p.dlq.Send(ctx, raw, Reason(err), tenant)
}
