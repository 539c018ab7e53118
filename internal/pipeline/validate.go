package pipeline

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
)

// DefaultSchemaVersions are the event schema versions accepted unless configured otherwise
var DefaultSchemaVersions = []int{1, 2}

// Validator checks envelopes against the ingestion contract.
// It is stateless and safe for concurrent use.
type Validator struct {
	versions []int
}

// NewValidator creates a validator accepting the given schema versions (DefaultSchemaVersions when empty)
func NewValidator(versions ...int) *Validator {
	if len(versions) == 0 {
		versions = DefaultSchemaVersions
	}
	v := slices.Clone(versions)
	slices.Sort(v)
	return &Validator{versions: v}
}

// Validate applies the rules in a fixed order and reports the first violation
// as a *ValidationError. A nil return means the envelope is acceptable.
func (v *Validator) Validate(env *types.Envelope) error {
	if env == nil {
		return &ValidationError{Field: "envelope", Reason: "envelope is required"}
	}
	ev := env.Event
	if ev == nil {
		return &ValidationError{Field: "event", Reason: "event is required"}
	}
	if blank(ev.EventID) {
		return &ValidationError{Field: "event_id", Reason: "event_id is required"}
	}
	if blank(ev.EventType) {
		return &ValidationError{Field: "event_type", Reason: "event_type is required"}
	}
	if ev.SchemaVersion == nil || *ev.SchemaVersion <= 0 {
		return &ValidationError{Field: "schema_version", Reason: "schema_version must be positive"}
	}
	if !slices.Contains(v.versions, *ev.SchemaVersion) {
		return &ValidationError{
			Field:  "schema_version",
			Reason: fmt.Sprintf("schema_version %d is not supported. Allowed versions: %s", *ev.SchemaVersion, v.allowed()),
		}
	}
	if blank(ev.OccurredAt) {
		return &ValidationError{Field: "occurred_at", Reason: "occurred_at is required"}
	}
	if _, err := ParseTimestamp(ev.OccurredAt); err != nil {
		return &ValidationError{Field: "occurred_at", Reason: "occurred_at must be in ISO-8601 format: " + err.Error()}
	}
	if len(ev.Payload) == 0 {
		return &ValidationError{Field: "payload", Reason: "payload is required and cannot be empty"}
	}
	if blank(env.TenantID) {
		return &ValidationError{Field: "tenant_id", Reason: "tenant_id is required"}
	}
	if blank(env.IdempotencyKey) {
		return &ValidationError{Field: "idempotency_key", Reason: "idempotency_key is required"}
	}
	return nil
}

// allowed renders the accepted versions as "[1, 2]"
func (v *Validator) allowed() string {
	parts := make([]string, len(v.versions))
	for i, n := range v.versions {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
