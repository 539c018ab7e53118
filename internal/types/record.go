package types

import (
	"time"

	"github.com/google/uuid"
)

// StatusProcessed is the only status a stored event can have.
const StatusProcessed = "processed"

// TenantUnknown is recorded on dead letters whose tenant could not be extracted.
const TenantUnknown = "unknown"

// Record is a persisted, immutable event.
type Record struct {
	ID             uuid.UUID
	TenantID       string
	EventID        string
	IdempotencyKey string
	EventType      string
	SchemaVersion  int
	OccurredAt     time.Time
	ReceivedAt     time.Time
	ProcessedAt    time.Time
	Payload        map[string]any
	Status         string
}

// TypeCount is one bucket of the event-type histogram.
type TypeCount struct {
	EventType string
	Count     int64
}

// DeadLetter is published to the dead-letter topic for every message that failed processing.
type DeadLetter struct {
	FailedAt string `json:"failed_at"`
	Reason   string `json:"reason"`
	Original string `json:"original"`
	TenantID string `json:"tenant_id"`
}
