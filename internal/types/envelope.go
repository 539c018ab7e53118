package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Envelope is the wrapper produced by the ingest API around a business event.
type Envelope struct {
	TenantID       string `json:"tenant_id"`
	ReceivedAt     string `json:"received_at"`
	RequestID      string `json:"request_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	Event          *Event `json:"event"`
}

// Event is the business event carried by an Envelope.
// SchemaVersion is a pointer so a missing field can be told apart from zero.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	SchemaVersion *int           `json:"schema_version"`
	OccurredAt    string         `json:"occurred_at"`
	Payload       map[string]any `json:"payload"`
}

// UnmarshalJSON decodes an event. schema_version may be an integer, an integral number
// such as 2.0, or a string holding an integer. Payload numbers are kept as json.Number.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var aux struct {
		plain
		SchemaVersion json.RawMessage `json:"schema_version"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&aux); err != nil {
		return err
	}

	version, err := parseSchemaVersion(aux.SchemaVersion)
	if err != nil {
		return err
	}
	*e = Event(aux.plain)
	e.SchemaVersion = version
	return nil
}

func parseSchemaVersion(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("schema_version %q is not an integer", s)
		}
		return &v, nil
	}

	n := json.Number(raw)
	if v, err := n.Int64(); err == nil && v >= math.MinInt32 && v <= math.MaxInt32 {
		i := int(v)
		return &i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, fmt.Errorf("schema_version %s is not an integer", raw)
	}
	i := int(f)
	return &i, nil
}

// EnrichedEnvelope is an Envelope after enrichment.
// Derived holds values computed by enrichment steps; they are not persisted.
type EnrichedEnvelope struct {
	Envelope
	ProcessedAt time.Time
	Derived     map[string]any
}
