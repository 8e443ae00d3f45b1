// Package testutil holds shared fixtures for the billing tests: an in-memory
// transactional store with fault injection, a recording notifier, seed data
// and a pinned clock.
package testutil

import "time"

// FixedClock returns a clock pinned to t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
