package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const selectColumns = `id::text, tenant_id, event_id, idempotency_key, event_type, schema_version,
	occurred_at, received_at, processed_at, payload, status`

var _ store.Store = (*Store)(nil)

// Put inserts rec in its own transaction. A second record for the same tenant and
// idempotency key fails with store.ErrDuplicate.
func (s *Store) Put(ctx context.Context, rec *types.Record) error {
	row, err := store.ToRow(rec)
	if err != nil {
		return err
	}

	return s.withinTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO events (id, tenant_id, event_id, idempotency_key, event_type, schema_version,
				occurred_at, received_at, processed_at, payload, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)`,
			row.ID, row.TenantID, row.EventID, row.IdempotencyKey, row.EventType, row.SchemaVersion,
			row.OccurredAt, row.ReceivedAt, row.ProcessedAt, string(row.Payload), row.Status,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("insert event %s: %w", row.EventID, store.ErrDuplicate)
			}
			return fmt.Errorf("insert event %s: %w", row.EventID, err)
		}
		return nil
	})
}

// GetByTenantAndEventID returns the earliest record with the given event id
func (s *Store) GetByTenantAndEventID(ctx context.Context, tenantID, eventID string) (*types.Record, error) {
	return s.getOne(ctx, `SELECT `+selectColumns+` FROM events
		WHERE tenant_id = $1 AND event_id = $2
		ORDER BY processed_at ASC LIMIT 1`, tenantID, eventID)
}

// GetByTenantAndIdempotencyKey returns the record with the given idempotency key
func (s *Store) GetByTenantAndIdempotencyKey(ctx context.Context, tenantID, key string) (*types.Record, error) {
	return s.getOne(ctx, `SELECT `+selectColumns+` FROM events
		WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key)
}

// CountSince counts records processed strictly after since
func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE processed_at > $1`, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// TopTypesSince returns the most frequent event types processed after since
func (s *Store) TopTypesSince(ctx context.Context, since time.Time, limit int) ([]types.TypeCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, COUNT(*) AS cnt FROM events
		WHERE processed_at > $1
		GROUP BY event_type
		ORDER BY cnt DESC, event_type ASC
		LIMIT $2`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("top event types: %w", err)
	}
	defer rows.Close()

	out := make([]types.TypeCount, 0, limit)
	for rows.Next() {
		var tc types.TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan event type count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// Recent returns the newest records by received_at
func (s *Store) Recent(ctx context.Context, limit int) ([]*types.Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM events
		ORDER BY received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (*types.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

func scanRecord(row pgx.Row) (*types.Record, error) {
	var r store.Row
	err := row.Scan(&r.ID, &r.TenantID, &r.EventID, &r.IdempotencyKey, &r.EventType, &r.SchemaVersion,
		&r.OccurredAt, &r.ReceivedAt, &r.ProcessedAt, &r.Payload, &r.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return store.FromRow(r)
}
