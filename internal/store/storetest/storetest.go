// Package storetest holds the behavior every store.Store implementation must satisfy.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewRecord builds a processed record; processedAt also sets received and occurred times.
func NewRecord(tenant, key, eventType string, processedAt time.Time) *types.Record {
	return &types.Record{
		ID:             uuid.New(),
		TenantID:       tenant,
		EventID:        "evt-" + key,
		IdempotencyKey: key,
		EventType:      eventType,
		SchemaVersion:  1,
		OccurredAt:     processedAt.Add(-2 * time.Second),
		ReceivedAt:     processedAt.Add(-time.Second),
		ProcessedAt:    processedAt,
		Payload:        map[string]any{"k": "v", "n": json.Number("3"), "big": json.Number("9007199254740993"), "nested": map[string]any{"a": true}},
		Status:         types.StatusProcessed,
	}
}

// Run exercises a fresh store created by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("put_and_get", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("tenant_a", "idem-1", "page_view", base)
		require.NoError(t, s.Put(ctx, rec))

		got, err := s.GetByTenantAndEventID(ctx, "tenant_a", rec.EventID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "page_view", got.EventType)
		assert.Equal(t, types.StatusProcessed, got.Status)
		assert.Equal(t, 1, got.SchemaVersion)
		assert.True(t, rec.ProcessedAt.Equal(got.ProcessedAt), "processed_at %v != %v", got.ProcessedAt, rec.ProcessedAt)
		assert.True(t, rec.OccurredAt.Equal(got.OccurredAt))
		assert.True(t, rec.ReceivedAt.Equal(got.ReceivedAt))
		assert.Equal(t, rec.Payload, got.Payload)

		got, err = s.GetByTenantAndIdempotencyKey(ctx, "tenant_a", "idem-1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
	})

	t.Run("lookups_are_tenant_scoped", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecord("tenant_a", "idem-1", "page_view", base)
		require.NoError(t, s.Put(ctx, rec))

		_, err := s.GetByTenantAndEventID(ctx, "tenant_b", rec.EventID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetByTenantAndIdempotencyKey(ctx, "tenant_b", "idem-1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate_idempotency_key_rejected", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRecord("tenant_a", "idem-1", "page_view", base)))

		dup := NewRecord("tenant_a", "idem-1", "click", base.Add(time.Minute))
		err := s.Put(ctx, dup)
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrDuplicate), "expected ErrDuplicate, got %v", err)

		got, err := s.GetByTenantAndIdempotencyKey(ctx, "tenant_a", "idem-1")
		require.NoError(t, err)
		assert.Equal(t, "page_view", got.EventType, "the rejected write must leave no trace")

		// Same key under another tenant is a different event.
		require.NoError(t, s.Put(ctx, NewRecord("tenant_b", "idem-1", "page_view", base)))
	})

	t.Run("count_and_top_types", func(t *testing.T) {
		s := newStore(t)
		for i := range 3 {
			require.NoError(t, s.Put(ctx, NewRecord("t", fmt.Sprintf("a%d", i), "click", base.Add(time.Duration(i)*time.Second))))
		}
		for i := range 2 {
			require.NoError(t, s.Put(ctx, NewRecord("t", fmt.Sprintf("b%d", i), "view", base.Add(time.Duration(i)*time.Second))))
		}
		require.NoError(t, s.Put(ctx, NewRecord("t", "c0", "signup", base)))
		require.NoError(t, s.Put(ctx, NewRecord("t", "old", "click", base.Add(-time.Hour))))

		since := base.Add(-time.Minute)
		n, err := s.CountSince(ctx, since)
		require.NoError(t, err)
		assert.Equal(t, int64(6), n)

		top, err := s.TopTypesSince(ctx, since, 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, types.TypeCount{EventType: "click", Count: 3}, top[0])
		assert.Equal(t, types.TypeCount{EventType: "view", Count: 2}, top[1])

		// since is exclusive
		n, err = s.CountSince(ctx, base.Add(2*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("recent_orders_by_received_at", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, NewRecord("t", "first", "click", base)))
		require.NoError(t, s.Put(ctx, NewRecord("t", "third", "click", base.Add(2*time.Minute))))
		require.NoError(t, s.Put(ctx, NewRecord("t", "second", "click", base.Add(time.Minute))))

		recent, err := s.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "third", recent[0].IdempotencyKey)
		assert.Equal(t, "second", recent[1].IdempotencyKey)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
