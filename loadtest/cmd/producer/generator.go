package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var eventTypes = []string{"order.created", "order.paid", "page.viewed", "user.signed_up", "cart.updated"}

// malformed messages exercise each dead-letter category
var malformed = []string{
	`{"tenant_id":"tenant_broken","received_at":`,
	`not json at all`,
	`null`,
}

// generator produces inbound envelopes. A share of them is invalid or reuses an
// idempotency key so every dead-letter path sees traffic.
type generator struct {
	faker          *gofakeit.Faker
	tenants        []string
	invalidRatio   float64
	duplicateRatio float64
	lastKey        map[string]string
}

func newGenerator(seed int64, tenants int, invalidRatio, duplicateRatio float64) *generator {
	faker := gofakeit.New(seed)
	ids := make([]string, 0, tenants)
	for i := range tenants {
		ids = append(ids, fmt.Sprintf("tenant_%s_%d", faker.LetterN(4), i))
	}
	return &generator{
		faker:          faker,
		tenants:        ids,
		invalidRatio:   invalidRatio,
		duplicateRatio: duplicateRatio,
		lastKey:        make(map[string]string),
	}
}

// next returns the message key (tenant) and value
func (g *generator) next(now time.Time) (string, []byte, error) {
	tenant := g.tenants[g.faker.Number(0, len(g.tenants)-1)]
	roll := g.faker.Float64Range(0, 1)

	if roll < g.invalidRatio {
		value, err := g.invalid(tenant, now)
		return tenant, value, err
	}

	key := g.faker.UUID()
	if prev, ok := g.lastKey[tenant]; ok && roll < g.invalidRatio+g.duplicateRatio {
		key = prev
	}
	g.lastKey[tenant] = key

	value, err := json.Marshal(g.envelope(tenant, key, now))
	return tenant, value, err
}

func (g *generator) envelope(tenant, key string, now time.Time) map[string]any {
	return map[string]any{
		"tenant_id":       tenant,
		"received_at":     now.UTC().Format(time.RFC3339Nano),
		"request_id":      g.faker.UUID(),
		"idempotency_key": key,
		"event": map[string]any{
			"event_id":       g.faker.UUID(),
			"event_type":     eventTypes[g.faker.Number(0, len(eventTypes)-1)],
			"schema_version": g.faker.Number(1, 2),
			"occurred_at":    now.Add(-time.Duration(g.faker.Number(0, 5000)) * time.Millisecond).UTC().Format(time.RFC3339Nano),
			"payload": map[string]any{
				"user":     g.faker.Username(),
				"email":    g.faker.Email(),
				"ip":       g.faker.IPv4Address(),
				"amount":   g.faker.Price(1, 500),
				"currency": g.faker.CurrencyShort(),
			},
		},
	}
}

// invalid returns either unparsable bytes or a well-formed envelope that fails validation
func (g *generator) invalid(tenant string, now time.Time) ([]byte, error) {
	if g.faker.Bool() {
		return []byte(malformed[g.faker.Number(0, len(malformed)-1)]), nil
	}
	env := g.envelope(tenant, g.faker.UUID(), now)
	event := env["event"].(map[string]any)
	switch g.faker.Number(0, 2) {
	case 0:
		event["schema_version"] = 99
	case 1:
		delete(env, "tenant_id")
	default:
		event["occurred_at"] = "yesterday"
	}
	return json.Marshal(env)
}
