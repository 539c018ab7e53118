package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/google/uuid"
)

// Row is the column representation of a Record. Payload holds the JSON document.
type Row struct {
	ID             string
	TenantID       string
	EventID        string
	IdempotencyKey string
	EventType      string
	SchemaVersion  int
	OccurredAt     time.Time
	ReceivedAt     time.Time
	ProcessedAt    time.Time
	Payload        []byte
	Status         string
}

// ToRow converts a record to its row representation. Timestamps are normalized to UTC.
func ToRow(rec *types.Record) (Row, error) {
	if rec == nil {
		return Row{}, fmt.Errorf("record is nil")
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return Row{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Row{
		ID:             rec.ID.String(),
		TenantID:       rec.TenantID,
		EventID:        rec.EventID,
		IdempotencyKey: rec.IdempotencyKey,
		EventType:      rec.EventType,
		SchemaVersion:  rec.SchemaVersion,
		OccurredAt:     rec.OccurredAt.UTC(),
		ReceivedAt:     rec.ReceivedAt.UTC(),
		ProcessedAt:    rec.ProcessedAt.UTC(),
		Payload:        payload,
		Status:         rec.Status,
	}, nil
}

// FromRow converts a row back to a record. Payload numbers are decoded as json.Number.
func FromRow(row Row) (*types.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", row.ID, err)
	}
	var payload map[string]any
	if len(row.Payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(row.Payload))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &types.Record{
		ID:             id,
		TenantID:       row.TenantID,
		EventID:        row.EventID,
		IdempotencyKey: row.IdempotencyKey,
		EventType:      row.EventType,
		SchemaVersion:  row.SchemaVersion,
		OccurredAt:     row.OccurredAt.UTC(),
		ReceivedAt:     row.ReceivedAt.UTC(),
		ProcessedAt:    row.ProcessedAt.UTC(),
		Payload:        payload,
		Status:         row.Status,
	}, nil
}
