package shared

import "time"

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time

// SystemClock returns time.Now
func SystemClock() time.Time {
	return time.Now()
}

// Now calls the clock, falling back to the system clock when nil
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
