// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/store"
	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
	"github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	tenant_id       TEXT    NOT NULL,
	event_id        TEXT    NOT NULL,
	idempotency_key TEXT    NOT NULL,
	event_type      TEXT    NOT NULL,
	schema_version  INTEGER NOT NULL,
	occurred_at     TEXT    NOT NULL,
	received_at     TEXT    NOT NULL,
	processed_at    TEXT    NOT NULL,
	payload         TEXT    NOT NULL,
	status          TEXT    NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS events_tenant_idempotency_key_idx ON events (tenant_id, idempotency_key);
CREATE INDEX IF NOT EXISTS events_tenant_event_id_idx ON events (tenant_id, event_id);
CREATE INDEX IF NOT EXISTS events_processed_at_idx ON events (processed_at);
CREATE INDEX IF NOT EXISTS events_received_at_idx ON events (received_at);
`

const selectColumns = `id, tenant_id, event_id, idempotency_key, event_type, schema_version,
	occurred_at, received_at, processed_at, payload, status`

// timeLayout is fixed width so text order matches time order for years 0001 to 9999
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store keeps events in a single SQLite file. Timestamps are stored as UTC text in timeLayout.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema exists.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection serializes writers and keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put inserts rec in its own transaction
func (s *Store) Put(ctx context.Context, rec *types.Record) (err error) {
	row, err := store.ToRow(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, tenant_id, event_id, idempotency_key, event_type, schema_version,
			occurred_at, received_at, processed_at, payload, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.TenantID, row.EventID, row.IdempotencyKey, row.EventType, row.SchemaVersion,
		formatTime(row.OccurredAt), formatTime(row.ReceivedAt), formatTime(row.ProcessedAt),
		string(row.Payload), row.Status,
	)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("insert event %s: %w", row.EventID, store.ErrDuplicate)
		}
		return fmt.Errorf("insert event %s: %w", row.EventID, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByTenantAndEventID returns the earliest record with the given event id
func (s *Store) GetByTenantAndEventID(ctx context.Context, tenantID, eventID string) (*types.Record, error) {
	return s.getOne(ctx, `SELECT `+selectColumns+` FROM events
		WHERE tenant_id = ? AND event_id = ?
		ORDER BY processed_at ASC LIMIT 1`, tenantID, eventID)
}

// GetByTenantAndIdempotencyKey returns the record with the given idempotency key
func (s *Store) GetByTenantAndIdempotencyKey(ctx context.Context, tenantID, key string) (*types.Record, error) {
	return s.getOne(ctx, `SELECT `+selectColumns+` FROM events
		WHERE tenant_id = ? AND idempotency_key = ?`, tenantID, key)
}

// CountSince counts records processed strictly after since
func (s *Store) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE processed_at > ?`, formatTime(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// TopTypesSince returns the most frequent event types processed after since
func (s *Store) TopTypesSince(ctx context.Context, since time.Time, limit int) ([]types.TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) AS cnt FROM events
		WHERE processed_at > ?
		GROUP BY event_type
		ORDER BY cnt DESC, event_type ASC
		LIMIT ?`, formatTime(since), limit)
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
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM events
		ORDER BY received_at DESC LIMIT ?`, limit)
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

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (*types.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*types.Record, error) {
	var (
		r                             store.Row
		occurred, received, processed string
		payload                       string
	)
	err := sc.Scan(&r.ID, &r.TenantID, &r.EventID, &r.IdempotencyKey, &r.EventType, &r.SchemaVersion,
		&occurred, &received, &processed, &payload, &r.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if r.OccurredAt, err = parseTime(occurred); err != nil {
		return nil, err
	}
	if r.ReceivedAt, err = parseTime(received); err != nil {
		return nil, err
	}
	if r.ProcessedAt, err = parseTime(processed); err != nil {
		return nil, err
	}
	r.Payload = []byte(payload)
	return store.FromRow(r)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
