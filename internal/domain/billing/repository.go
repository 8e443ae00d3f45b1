package billing

import (
	"context"
	"errors"
)

// ErrSessionConflict is returned by SessionRepository.Create when the unique
// session index already holds the identifier. It is a replay signal, not a failure.
var ErrSessionConflict = errors.New("billing: session id already committed")

// SessionRepository persists usage sessions
type SessionRepository interface {
	// Create inserts the session; returns ErrSessionConflict on a duplicate session id
	Create(ctx context.Context, session *UsageSession) error
	// FindBySessionID returns shared.ErrNotFound when absent
	FindBySessionID(ctx context.Context, sessionID string) (*UsageSession, error)
	CountBySessionID(ctx context.Context, sessionID string) (int64, error)
}

// LedgerRepository appends ledger entries; entries are never updated
type LedgerRepository interface {
	Create(ctx context.Context, entry *LedgerEntry) error
	FindByReference(ctx context.Context, referenceType, referenceID string) ([]*LedgerEntry, error)
	ListByOperator(ctx context.Context, operatorID string, limit int) ([]*LedgerEntry, error)
}
