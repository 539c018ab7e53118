package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sentDeadLetter struct {
	original []byte
	reason   string
	tenant   string
}

type recordingDLQ struct {
	mu   sync.Mutex
	sent []sentDeadLetter
}

func (r *recordingDLQ) Send(_ context.Context, original []byte, reason, tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentDeadLetter{original: original, reason: reason, tenant: tenantID})
}

func (r *recordingDLQ) all() []sentDeadLetter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentDeadLetter(nil), r.sent...)
}

type failingStore struct{ err error }

func (f failingStore) Put(context.Context, *types.Record) error { return f.err }

type panickingStore struct{}

func (panickingStore) Put(context.Context, *types.Record) error { panic("boom") }

var fixedNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type harness struct {
	pipeline *Pipeline
	dlq      *recordingDLQ
	memory   *store.Memory
	metrics  *obs.Metrics
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, persister Persister, steps ...Step) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	mem := store.NewMemory()
	if persister == nil {
		persister = mem
	}
	dlq := &recordingDLQ{}
	metrics := obs.NewMetrics("test", prometheus.NewRegistry())

	p, err := New(
		NewValidator(),
		NewEnricher(logger, clock, steps...),
		NewWriter(persister, logger, clock),
		dlq,
		metrics,
		logger,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{pipeline: p, dlq: dlq, memory: mem, metrics: metrics, logs: logs}
}

const validRaw = `{
	"tenant_id": "tenant_a",
	"received_at": "2025-01-15T10:30:01Z",
	"idempotency_key": "idem-1",
	"event": {
		"event_id": "evt-1",
		"event_type": "page_view",
		"schema_version": 1,
		"occurred_at": "2025-01-15T10:30:00Z",
		"payload": {"k": "v"}
	}
}`

func TestProcess_ValidEnvelopeIsStored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	res := h.pipeline.Process(context.Background(), []byte(validRaw))
	if res.Err != nil {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Category() != "" {
		t.Fatalf("expected empty category, got %q", res.Category())
	}
	if len(h.dlq.all()) != 0 {
		t.Fatalf("expected no dead letters, got %d", len(h.dlq.all()))
	}

	got, err := h.memory.GetByTenantAndIdempotencyKey(context.Background(), "tenant_a", "idem-1")
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	if got.Status != types.StatusProcessed {
		t.Fatalf("expected status processed, got %q", got.Status)
	}
	if !got.ProcessedAt.Equal(fixedNow) {
		t.Fatalf("expected processed_at %v, got %v", fixedNow, got.ProcessedAt)
	}
	if want := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC); !got.OccurredAt.Equal(want) {
		t.Fatalf("expected occurred_at %v, got %v", want, got.OccurredAt)
	}
	if got.Payload["k"] != "v" {
		t.Fatalf("unexpected payload %v", got.Payload)
	}
	if v := testutil.ToFloat64(h.metrics.EventsProcessedTotal); v != 1 {
		t.Fatalf("expected events_processed_total=1, got %v", v)
	}
}

func TestProcess_LargeIntegerPayloadIsPreserved(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	raw := strings.Replace(validRaw, `{"k": "v"}`, `{"order_id":9007199254740993}`, 1)
	if res := h.pipeline.Process(context.Background(), []byte(raw)); res.Err != nil {
		t.Fatalf("expected success, got %v", res.Err)
	}

	got, err := h.memory.GetByTenantAndIdempotencyKey(context.Background(), "tenant_a", "idem-1")
	if err != nil {
		t.Fatalf("expected stored record, got %v", err)
	}
	row, err := store.ToRow(got)
	if err != nil {
		t.Fatalf("ToRow: %v", err)
	}
	if want := `{"order_id":9007199254740993}`; string(row.Payload) != want {
		t.Fatalf("expected payload %s, got %s", want, row.Payload)
	}
}

func TestProcess_DeadLetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		raw          string
		wantCategory string
		wantPrefix   string
		wantTenant   string
	}{
		{
			name:         "not_json",
			raw:          `not json`,
			wantCategory: CategoryDeserialization,
			wantPrefix:   "DESERIALIZATION_FAILED: ",
			wantTenant:   types.TenantUnknown,
		},
		{
			name:         "empty_string",
			raw:          ``,
			wantCategory: CategoryDeserialization,
			wantPrefix:   "DESERIALIZATION_FAILED: ",
			wantTenant:   types.TenantUnknown,
		},
		{
			name:         "truncated_json_keeps_tenant",
			raw:          `{"tenant_id":"tenant_b","event":{"event_id":`,
			wantCategory: CategoryDeserialization,
			wantPrefix:   "DESERIALIZATION_FAILED: ",
			wantTenant:   "tenant_b",
		},
		{
			name:         "null",
			raw:          `null`,
			wantCategory: CategoryValidation,
			wantPrefix:   "VALIDATION_FAILED: envelope is required",
			wantTenant:   types.TenantUnknown,
		},
		{
			name:         "unsupported_schema_version",
			raw:          strings.Replace(validRaw, `"schema_version": 1`, `"schema_version": 5`, 1),
			wantCategory: CategoryValidation,
			wantPrefix:   "VALIDATION_FAILED: schema_version 5 is not supported",
			wantTenant:   "tenant_a",
		},
		{
			name:         "missing_tenant",
			raw:          strings.Replace(validRaw, `"tenant_id": "tenant_a"`, `"tenant_id": ""`, 1),
			wantCategory: CategoryValidation,
			wantPrefix:   "VALIDATION_FAILED: tenant_id is required",
			wantTenant:   types.TenantUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)

			res := h.pipeline.Process(context.Background(), []byte(tt.raw))
			if res.Category() != tt.wantCategory {
				t.Fatalf("expected category %q, got %q (%v)", tt.wantCategory, res.Category(), res.Err)
			}
			if res.Record != nil {
				t.Fatalf("expected no record, got %+v", res.Record)
			}
			if h.memory.Len() != 0 {
				t.Fatalf("expected empty store, got %d records", h.memory.Len())
			}

			sent := h.dlq.all()
			if len(sent) != 1 {
				t.Fatalf("expected 1 dead letter, got %d", len(sent))
			}
			if !strings.HasPrefix(sent[0].reason, tt.wantPrefix) {
				t.Fatalf("expected reason prefix %q, got %q", tt.wantPrefix, sent[0].reason)
			}
			if sent[0].tenant != tt.wantTenant {
				t.Fatalf("expected tenant %q, got %q", tt.wantTenant, sent[0].tenant)
			}
			if string(sent[0].original) != tt.raw {
				t.Fatalf("expected original to be the raw message")
			}
			if v := testutil.ToFloat64(h.metrics.DLQMessagesTotal.WithLabelValues(tt.wantCategory)); v != 1 {
				t.Fatalf("expected dlq counter 1 for %s, got %v", tt.wantCategory, v)
			}
		})
	}
}

func TestProcess_DuplicateIdempotencyKey(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	ctx := context.Background()

	if res := h.pipeline.Process(ctx, []byte(validRaw)); res.Err != nil {
		t.Fatalf("first write failed: %v", res.Err)
	}
	res := h.pipeline.Process(ctx, []byte(validRaw))
	if res.Category() != CategoryProcessing {
		t.Fatalf("expected %s, got %q (%v)", CategoryProcessing, res.Category(), res.Err)
	}
	if !errors.Is(res.Err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate in chain, got %v", res.Err)
	}
	if h.memory.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", h.memory.Len())
	}
	sent := h.dlq.all()
	if len(sent) != 1 || !strings.HasPrefix(sent[0].reason, "PROCESSING_ERROR: ") || sent[0].tenant != "tenant_a" {
		t.Fatalf("unexpected dead letters %+v", sent)
	}
}

func TestProcess_StoreFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		persister Persister
	}{
		{name: "store_error", persister: failingStore{err: errors.New("connection refused")}},
		{name: "store_panic", persister: panickingStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.persister)

			res := h.pipeline.Process(context.Background(), []byte(validRaw))
			var pe *ProcessError
			if !errors.As(res.Err, &pe) {
				t.Fatalf("expected *ProcessError, got %T (%v)", res.Err, res.Err)
			}
			sent := h.dlq.all()
			if len(sent) != 1 || !strings.HasPrefix(sent[0].reason, "PROCESSING_ERROR: ") {
				t.Fatalf("unexpected dead letters %+v", sent)
			}
		})
	}
}

func TestProcess_SameMalformedMessageTwice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	for range 2 {
		h.pipeline.Process(context.Background(), []byte(`not json`))
	}
	if got := len(h.dlq.all()); got != 2 {
		t.Fatalf("expected 2 independent dead letters, got %d", got)
	}
}

func TestProcess_FailingEnrichmentStepIsSkipped(t *testing.T) {
	t.Parallel()

	var seen map[string]any
	failing := StepFunc{StepName: "geo", Fn: func(_ context.Context, _ *types.Envelope, d map[string]any) error {
		d["country"] = "xx"
		return errors.New("lookup unavailable")
	}}
	ok := StepFunc{StepName: "source", Fn: func(_ context.Context, env *types.Envelope, d map[string]any) error {
		d["source"] = env.TenantID
		return nil
	}}
	capture := StepFunc{StepName: "capture", Fn: func(_ context.Context, _ *types.Envelope, d map[string]any) error {
		seen = d
		return nil
	}}

	core, logs := observer.New(zapcore.WarnLevel)
	enricher := NewEnricher(zap.New(core), clock, failing, ok, capture)
	env := validEnvelope()
	out := enricher.Enrich(context.Background(), env)

	if out.Derived["source"] != "tenant_a" {
		t.Fatalf("expected derived source, got %v", out.Derived)
	}
	if _, found := out.Derived["country"]; found {
		t.Fatalf("failed step must not contribute values, got %v", out.Derived)
	}
	if seen == nil {
		t.Fatalf("expected steps after the failure to run")
	}
	if !out.ProcessedAt.Equal(fixedNow) {
		t.Fatalf("expected processed_at %v, got %v", fixedNow, out.ProcessedAt)
	}
	if logs.FilterMessage("Enrichment step failed, skipping").Len() != 1 {
		t.Fatalf("expected one warning for the failed step")
	}

	h := newHarness(t, nil, failing)
	if res := h.pipeline.Process(context.Background(), []byte(validRaw)); res.Err != nil {
		t.Fatalf("expected success despite failing step, got %v", res.Err)
	}
}

func TestProcess_UnparsableReceivedAtUsesNow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	raw := strings.Replace(validRaw, `"received_at": "2025-01-15T10:30:01Z"`, `"received_at": "soon"`, 1)
	res := h.pipeline.Process(context.Background(), []byte(raw))
	if res.Err != nil {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if !res.Record.ReceivedAt.Equal(fixedNow) {
		t.Fatalf("expected received_at to fall back to now, got %v", res.Record.ReceivedAt)
	}
	if h.logs.FilterMessage("Failed to parse timestamp, using current time").Len() != 1 {
		t.Fatalf("expected a timestamp warning")
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	logger := zap.NewNop()
	v, e, w := NewValidator(), NewEnricher(logger, nil), NewWriter(store.NewMemory(), logger, nil)

	if _, err := New(nil, e, w, &recordingDLQ{}, nil, logger); err == nil {
		t.Fatalf("expected error for nil validator")
	}
	if _, err := New(v, e, w, nil, nil, logger); err == nil {
		t.Fatalf("expected error for nil dlq")
	}
	if _, err := New(v, e, w, &recordingDLQ{}, nil, nil); err == nil {
		t.Fatalf("expected error for nil logger")
	}
	if _, err := New(v, e, w, &recordingDLQ{}, nil, logger); err != nil {
		t.Fatalf("expected nil metrics to be accepted, got %v", err)
	}
}
