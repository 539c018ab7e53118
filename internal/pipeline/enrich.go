package pipeline

import (
	"context"
	"maps"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"go.uber.org/zap"
)

// Step is an optional enrichment step. It may add values to derived; an error skips the step.
type Step interface {
	Name() string
	Enrich(ctx context.Context, env *types.Envelope, derived map[string]any) error
}

// StepFunc adapts a function to Step
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, env *types.Envelope, derived map[string]any) error
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Enrich(ctx context.Context, env *types.Envelope, derived map[string]any) error {
	return s.Fn(ctx, env, derived)
}

// Enricher stamps the processing time and runs the registered steps.
type Enricher struct {
	steps  []Step
	now    func() time.Time
	logger *zap.Logger
}

// NewEnricher creates an enricher. A nil clock uses time.Now.
func NewEnricher(logger *zap.Logger, now func() time.Time, steps ...Step) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Enricher{steps: steps, now: now, logger: logger}
}

// Enrich returns a new enriched envelope; the input is not modified.
// Step failures are logged and ignored, so Enrich never fails.
func (e *Enricher) Enrich(ctx context.Context, env *types.Envelope) *types.EnrichedEnvelope {
	out := &types.EnrichedEnvelope{
		Envelope:    *env,
		ProcessedAt: e.now().UTC(),
		Derived:     make(map[string]any),
	}
	for _, step := range e.steps {
		// steps write into a scratch map so a failing step leaves nothing behind
		scratch := make(map[string]any)
		if err := step.Enrich(ctx, env, scratch); err != nil {
			e.logger.Warn("Enrichment step failed, skipping",
				zap.String("step", step.Name()),
				zap.String("tenant_id", env.TenantID),
				zap.Error(err),
			)
			continue
		}
		maps.Copy(out.Derived, scratch)
	}
	return out
}
