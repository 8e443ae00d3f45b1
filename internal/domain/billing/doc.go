// Package billing provides the domain model for per-session arcade billing.
//
// Key types:
//   - SessionID: the caller-supplied idempotency key "<operator>_<unix-ms>_<16 alnum>"
//   - UsageSession: immutable record of one authorized, paid session
//   - LedgerEntry: immutable before/after snapshot of one balance mutation
//
// A session identifier is billed at most once. The guarantee comes from the
// unique index on usage_sessions.session_id; SessionRepository.Create reports
// a collision as ErrSessionConflict so the caller can replay the committed row.
package billing
