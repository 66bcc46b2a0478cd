package types

import (
	"fmt"
	"time"
)

// Time is a structured timestamp with nanosecond precision, split into
// whole seconds and a nanosecond remainder. The zero value means
// "epoch zero" and doubles as the default bound for empty files.
type Time struct {
	// Sec is whole seconds since the Unix epoch
	Sec int64 `json:"sec"`

	// NSec is the nanosecond remainder, always in [0, 1e9)
	NSec int32 `json:"nsec"`
}

// FromNanoseconds converts an epoch-nanosecond value into a Time.
func FromNanoseconds(ns uint64) Time {
	return Time{
		Sec:  int64(ns / 1e9),
		NSec: int32(ns % 1e9),
	}
}

// Nanoseconds returns the timestamp as epoch nanoseconds.
func (t Time) Nanoseconds() uint64 {
	return uint64(t.Sec)*1e9 + uint64(t.NSec)
}

// Compare returns -1, 0 or 1 depending on whether t is before, equal to
// or after other.
func (t Time) Compare(other Time) int {
	switch {
	case t.Sec < other.Sec:
		return -1
	case t.Sec > other.Sec:
		return 1
	case t.NSec < other.NSec:
		return -1
	case t.NSec > other.NSec:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than other.
func (t Time) Before(other Time) bool {
	return t.Compare(other) < 0
}

// After reports whether t is strictly later than other.
func (t Time) After(other Time) bool {
	return t.Compare(other) > 0
}

// Sub returns the duration from other to t. Negative if t is earlier.
func (t Time) Sub(other Time) time.Duration {
	return time.Duration(int64(t.Nanoseconds()) - int64(other.Nanoseconds()))
}

// Std converts the timestamp to a standard library time.Time in UTC.
func (t Time) Std() time.Time {
	return time.Unix(t.Sec, int64(t.NSec)).UTC()
}

// String renders the timestamp as seconds.nanoseconds.
func (t Time) String() string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.NSec)
}
