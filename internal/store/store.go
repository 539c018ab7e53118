// Package store defines the event store contract and its in-memory implementation.
// Relational implementations live in the postgres and sqlite subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/EventProcessor/internal/types"
)

// Errors
var (
	// ErrNotFound is returned by lookups that match no record
	ErrNotFound = errors.New("event not found")
	// ErrDuplicate is returned by Put when (tenant_id, idempotency_key) already exists
	ErrDuplicate = errors.New("duplicate idempotency key for tenant")

	errStoreClosed = errors.New("store is closed")
)

// Store persists and queries event records.
// Put writes one record in its own transaction: it either fully succeeds or has no effect.
type Store interface {
	Put(ctx context.Context, rec *types.Record) error
	GetByTenantAndEventID(ctx context.Context, tenantID, eventID string) (*types.Record, error)
	GetByTenantAndIdempotencyKey(ctx context.Context, tenantID, key string) (*types.Record, error)
	// CountSince counts records with processed_at strictly after since
	CountSince(ctx context.Context, since time.Time) (int64, error)
	// TopTypesSince returns up to limit event types by count, highest first
	TopTypesSince(ctx context.Context, since time.Time, limit int) ([]types.TypeCount, error)
	// Recent returns up to limit records, newest received_at first
	Recent(ctx context.Context, limit int) ([]*types.Record, error)
	Ping(ctx context.Context) error
	Close() error
}
