// Package admin serves the read-only operational HTTP API.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/cache"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/dlq"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/lag"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"go.uber.org/zap"
)

const (
	recentEventsLimit   = 20
	topEventTypesLimit  = 50
	defaultSinceMinutes = 1440
	healthCheckTimeout  = 2 * time.Second
)

// EventReader is the read side of the event store
type EventReader interface {
	GetByTenantAndEventID(ctx context.Context, tenantID, eventID string) (*types.Record, error)
	GetByTenantAndIdempotencyKey(ctx context.Context, tenantID, key string) (*types.Record, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	TopTypesSince(ctx context.Context, since time.Time, limit int) ([]types.TypeCount, error)
	Recent(ctx context.Context, limit int) ([]*types.Record, error)
	Ping(ctx context.Context) error
}

// LagReporter reports consumer-group lag
type LagReporter interface {
	Report(ctx context.Context, group string) lag.Report
}

// DeadLetterSampler returns recent dead letters
type DeadLetterSampler interface {
	Sample(ctx context.Context, limit int) []types.DeadLetter
}

// Handlers holds the admin endpoint dependencies
type Handlers struct {
	events  EventReader
	lag     LagReporter
	sampler DeadLetterSampler
	cache   *cache.Cache
	group   string
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandlers creates admin handlers. cache may be nil.
func NewHandlers(events EventReader, lagReporter LagReporter, sampler DeadLetterSampler, c *cache.Cache, group string, logger *zap.Logger) (*Handlers, error) {
	if events == nil || lagReporter == nil || sampler == nil {
		return nil, fmt.Errorf("event reader, lag reporter and sampler are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Handlers{
		events:  events,
		lag:     lagReporter,
		sampler: sampler,
		cache:   c,
		group:   group,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Overview returns event counts for the last one and five minutes, the top event type of
// the last day and the most recent events.
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp OverviewResponse
	if h.cache.GetJSON(ctx, "overview", &resp) {
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	now := h.now()
	lastMinute, err := h.events.CountSince(ctx, now.Add(-time.Minute))
	if err != nil {
		h.internalError(w, "count events", err)
		return
	}
	last5Minutes, err := h.events.CountSince(ctx, now.Add(-5*time.Minute))
	if err != nil {
		h.internalError(w, "count events", err)
		return
	}
	top, err := h.events.TopTypesSince(ctx, now.Add(-24*time.Hour), 1)
	if err != nil {
		h.internalError(w, "top event types", err)
		return
	}
	recent, err := h.events.Recent(ctx, recentEventsLimit)
	if err != nil {
		h.internalError(w, "recent events", err)
		return
	}

	resp = OverviewResponse{
		EventsLastMinute:   lastMinute,
		EventsLast5Minutes: last5Minutes,
		TopEventType:       "none",
		Status:             "healthy",
		RecentEvents:       toEventDTOs(recent),
	}
	if len(top) > 0 {
		resp.TopEventType = top[0].EventType
	}

	h.cache.SetJSON(ctx, "overview", resp)
	h.writeJSON(w, http.StatusOK, resp)
}

// TopEventTypes returns the event-type histogram for the last sinceMinutes minutes
func (h *Handlers) TopEventTypes(w http.ResponseWriter, r *http.Request) {
	sinceMinutes, err := intParam(r, "sinceMinutes", defaultSinceMinutes)
	if err != nil || sinceMinutes <= 0 {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "sinceMinutes must be a positive integer"})
		return
	}

	ctx := r.Context()
	key := "top-event-types:" + strconv.Itoa(sinceMinutes)
	var resp []EventTypeCountDTO
	if h.cache.GetJSON(ctx, key, &resp) {
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	counts, err := h.events.TopTypesSince(ctx, h.now().Add(-time.Duration(sinceMinutes)*time.Minute), topEventTypesLimit)
	if err != nil {
		h.internalError(w, "top event types", err)
		return
	}
	resp = toTypeCountDTOs(counts)
	h.cache.SetJSON(ctx, key, resp)
	h.writeJSON(w, http.StatusOK, resp)
}

// SearchByEventID looks an event up by tenant and event id
func (h *Handlers) SearchByEventID(w http.ResponseWriter, r *http.Request) {
	tenant, eventID := r.URL.Query().Get("tenant"), r.URL.Query().Get("eventId")
	if tenant == "" || eventID == "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "tenant and eventId are required"})
		return
	}
	rec, err := h.events.GetByTenantAndEventID(r.Context(), tenant, eventID)
	h.writeEvent(w, rec, err)
}

// SearchByIdempotencyKey looks an event up by tenant and idempotency key
func (h *Handlers) SearchByIdempotencyKey(w http.ResponseWriter, r *http.Request) {
	tenant, key := r.URL.Query().Get("tenant"), r.URL.Query().Get("idempotencyKey")
	if tenant == "" || key == "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "tenant and idempotencyKey are required"})
		return
	}
	rec, err := h.events.GetByTenantAndIdempotencyKey(r.Context(), tenant, key)
	h.writeEvent(w, rec, err)
}

// DLQSample returns the most recent dead letters
func (h *Handlers) DLQSample(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", dlq.DefaultSampleLimit)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer"})
		return
	}
	h.writeJSON(w, http.StatusOK, toDLQSampleDTOs(h.sampler.Sample(r.Context(), dlq.ClampLimit(limit))))
}

// KafkaLag returns the consumer group lag; a failed query reports status "unknown"
func (h *Handlers) KafkaLag(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.lag.Report(r.Context(), h.group))
}

// Health reports database, Kafka and cache reachability.
// Only the database decides the HTTP status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "UP", Database: "connected", Kafka: "connected"}
	status := http.StatusOK

	if err := h.events.Ping(ctx); err != nil {
		h.logger.Warn("Database health check failed", zap.Error(err))
		resp.Status, resp.Database = "DOWN", "disconnected"
		status = http.StatusServiceUnavailable
	}
	if report := h.lag.Report(ctx, h.group); report.Status == lag.StatusUnknown {
		resp.Kafka = "unreachable"
	}
	if h.cache.Enabled() {
		resp.Cache = "connected"
		if err := h.cache.Ping(ctx); err != nil {
			resp.Cache = "disconnected"
		}
	}

	h.writeJSON(w, status, resp)
}

func (h *Handlers) writeEvent(w http.ResponseWriter, rec *types.Record, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "event not found"})
		return
	}
	if err != nil {
		h.internalError(w, "event lookup", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEventDTO(rec))
}

func (h *Handlers) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("Admin query failed", zap.String("op", op), zap.Error(err))
	h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
