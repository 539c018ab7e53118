package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
)

// Decode unmarshals a raw message value into an envelope.
// It returns a typed *DecodeError for malformed JSON, type mismatches or trailing data.
// Payload numbers are kept as json.Number so large integers survive storage unchanged.
// The literal "null" decodes to a nil envelope, which validation rejects.
func Decode(value []byte) (*types.Envelope, error) {
	if len(bytes.TrimSpace(value)) == 0 {
		return nil, &DecodeError{Err: errors.New("empty message")}
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()

	var env *types.Envelope
	if err := dec.Decode(&env); err != nil {
		// Preserve underlying error for errors.Is/As checks.
		return nil, &DecodeError{Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Err: errors.New("invalid character after top-level value")}
	}
	return env, nil
}

// ExtractTenant returns the tenant of a raw message, or "unknown" when it cannot be read.
// The top-level object is scanned token by token, so a tenant_id that precedes a syntax or
// type error is still found.
func ExtractTenant(value []byte) string {
	dec := json.NewDecoder(bytes.NewReader(value))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return types.TenantUnknown
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return types.TenantUnknown
		}
		key, _ := tok.(string)
		if key != "tenant_id" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return types.TenantUnknown
			}
			continue
		}
		var tenant string
		if err := dec.Decode(&tenant); err != nil {
			return types.TenantUnknown
		}
		return tenantOrUnknown(tenant)
	}
	return types.TenantUnknown
}

// EnvelopeTenant returns the envelope's tenant, or "unknown" when absent.
func EnvelopeTenant(env *types.Envelope) string {
	if env == nil {
		return types.TenantUnknown
	}
	return tenantOrUnknown(env.TenantID)
}

func tenantOrUnknown(tenant string) string {
	if strings.TrimSpace(tenant) == "" {
		return types.TenantUnknown
	}
	return tenant
}
