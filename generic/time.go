package generic

import (
	"time"
)

// =============================================================================
// CLOCK - Source of "now" for stamps like PaidAt
// =============================================================================

type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used in tests and scenarios.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

func clockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

// =============================================================================
// RANGE - Inclusive time window for ledger queries
// =============================================================================

// Range is an inclusive [From, To] window. A zero bound is open.
type Range struct {
	From time.Time
	To   time.Time
}

// All is the unbounded range.
var All = Range{}

// Between builds a range from two instants.
func Between(from, to time.Time) Range {
	return Range{From: from, To: to}
}

// Day returns the range covering the calendar day of t (UTC).
func Day(t time.Time) Range {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return Range{From: start, To: start.Add(24*time.Hour - time.Nanosecond)}
}

func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Valid reports whether the range is not inverted.
func (r Range) Valid() bool {
	return r.From.IsZero() || r.To.IsZero() || !r.To.Before(r.From)
}
