package admin

import (
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
)

// EventDTO is the JSON view of a stored event
type EventDTO struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenantId"`
	EventID        string         `json:"eventId"`
	IdempotencyKey string         `json:"idempotencyKey"`
	EventType      string         `json:"eventType"`
	SchemaVersion  int            `json:"schemaVersion"`
	OccurredAt     string         `json:"occurredAt"`
	ReceivedAt     string         `json:"receivedAt"`
	ProcessedAt    string         `json:"processedAt"`
	Payload        map[string]any `json:"payload"`
	Status         string         `json:"status"`
}

// OverviewResponse summarizes recent ingestion activity
type OverviewResponse struct {
	EventsLastMinute   int64      `json:"eventsLastMinute"`
	EventsLast5Minutes int64      `json:"eventsLast5Minutes"`
	TopEventType       string     `json:"topEventType"`
	Status             string     `json:"status"`
	RecentEvents       []EventDTO `json:"recentEvents"`
}

// EventTypeCountDTO is one histogram bucket
type EventTypeCountDTO struct {
	EventType string `json:"eventType"`
	Count     int64  `json:"count"`
}

// DLQSampleDTO is one sampled dead letter
type DLQSampleDTO struct {
	FailedAt string `json:"failedAt"`
	Reason   string `json:"reason"`
	Original string `json:"original"`
	TenantID string `json:"tenantId"`
}

// HealthResponse reports dependency health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Kafka    string `json:"kafka"`
	Cache    string `json:"cache,omitempty"`
}

// ErrorResponse is returned with 4xx and 5xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}

func toEventDTO(rec *types.Record) EventDTO {
	return EventDTO{
		ID:             rec.ID.String(),
		TenantID:       rec.TenantID,
		EventID:        rec.EventID,
		IdempotencyKey: rec.IdempotencyKey,
		EventType:      rec.EventType,
		SchemaVersion:  rec.SchemaVersion,
		OccurredAt:     rec.OccurredAt.UTC().Format(time.RFC3339Nano),
		ReceivedAt:     rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
		ProcessedAt:    rec.ProcessedAt.UTC().Format(time.RFC3339Nano),
		Payload:        rec.Payload,
		Status:         rec.Status,
	}
}

func toEventDTOs(recs []*types.Record) []EventDTO {
	out := make([]EventDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toEventDTO(rec))
	}
	return out
}

func toTypeCountDTOs(counts []types.TypeCount) []EventTypeCountDTO {
	out := make([]EventTypeCountDTO, 0, len(counts))
	for _, c := range counts {
		out = append(out, EventTypeCountDTO{EventType: c.EventType, Count: c.Count})
	}
	return out
}

func toDLQSampleDTOs(records []types.DeadLetter) []DLQSampleDTO {
	out := make([]DLQSampleDTO, 0, len(records))
	for _, r := range records {
		out = append(out, DLQSampleDTO{FailedAt: r.FailedAt, Reason: r.Reason, Original: r.Original, TenantID: r.TenantID})
	}
	return out
}
