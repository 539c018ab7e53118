package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
)

// Memory is an in-process Store for tests and local runs.
// Records are kept as rows, so callers never share payload maps with the store.
type Memory struct {
	mu     sync.RWMutex
	rows   []Row
	byKey  map[string]int
	byID   map[string]int
	closed bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		byKey: make(map[string]int),
		byID:  make(map[string]int),
	}
}

func tenantKey(tenantID, v string) string {
	return tenantID + "\x00" + v
}

// Put stores rec, rejecting a second record for the same tenant and idempotency key
func (m *Memory) Put(ctx context.Context, rec *types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := ToRow(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := tenantKey(row.TenantID, row.IdempotencyKey)
	if _, ok := m.byKey[key]; ok {
		return ErrDuplicate
	}
	m.rows = append(m.rows, row)
	idx := len(m.rows) - 1
	m.byKey[key] = idx
	// event_id is not unique; the first record wins lookups, matching the relational stores
	if _, ok := m.byID[tenantKey(row.TenantID, row.EventID)]; !ok {
		m.byID[tenantKey(row.TenantID, row.EventID)] = idx
	}
	return nil
}

// GetByTenantAndEventID returns the record with the given event id
func (m *Memory) GetByTenantAndEventID(ctx context.Context, tenantID, eventID string) (*types.Record, error) {
	return m.lookup(ctx, m.byID, tenantKey(tenantID, eventID))
}

// GetByTenantAndIdempotencyKey returns the record with the given idempotency key
func (m *Memory) GetByTenantAndIdempotencyKey(ctx context.Context, tenantID, key string) (*types.Record, error) {
	return m.lookup(ctx, m.byKey, tenantKey(tenantID, key))
}

func (m *Memory) lookup(ctx context.Context, index map[string]int, key string) (*types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := index[key]
	if !ok {
		return nil, ErrNotFound
	}
	return FromRow(m.rows[idx])
}

// CountSince counts records processed after since
func (m *Memory) CountSince(ctx context.Context, since time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.rows {
		if r.ProcessedAt.After(since) {
			n++
		}
	}
	return n, nil
}

// TopTypesSince returns event type counts for records processed after since
func (m *Memory) TopTypesSince(ctx context.Context, since time.Time, limit int) ([]types.TypeCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	counts := make(map[string]int64)
	for _, r := range m.rows {
		if r.ProcessedAt.After(since) {
			counts[r.EventType]++
		}
	}
	m.mu.RUnlock()

	out := make([]types.TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, types.TypeCount{EventType: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].EventType < out[j].EventType
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recent returns the newest records by received_at
func (m *Memory) Recent(ctx context.Context, limit int) ([]*types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	rows := make([]Row, len(m.rows))
	copy(rows, m.rows)
	m.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ReceivedAt.After(rows[j].ReceivedAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]*types.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := FromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Len returns the number of stored records
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Ping reports whether the store is open
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errStoreClosed
	}
	return ctx.Err()
}

// Close marks the store closed
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
