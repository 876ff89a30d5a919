package clock

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MonthKeyLayout is the layout of a rolling-quota period identifier ("2025-09").
const MonthKeyLayout = "2006-01"

// Clock produces the current instant. Every expiry and period check goes
// through a Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock, always in UTC.
type System struct{}

// Now returns the current UTC instant.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

// Now calls f and normalizes the result to UTC.
func (f Func) Now() time.Time {
	return f().UTC()
}

// NowUTC returns the current UTC instant of c, falling back to the system clock.
func NowUTC(c Clock) time.Time {
	if c == nil {
		return System{}.Now()
	}
	return c.Now().UTC()
}

// MonthKey formats t as the "YYYY-MM" period key in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyLayout)
}

// isoLayouts are tried in order when a timestamp was persisted as a string.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ToAwareUTC normalizes a stored timestamp into a UTC time.
//
// Accepted inputs are nil, time.Time, *time.Time, primitive.DateTime and
// ISO-8601 strings (a trailing "Z" is accepted, offsets are honoured,
// strings without an offset are read as UTC). Anything unparseable yields
// nil rather than an error: a broken date must never fail a quota check.
func ToAwareUTC(value interface{}) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		t := v.UTC()
		return &t
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil
		}
		t := v.UTC()
		return &t
	case primitive.DateTime:
		t := v.Time().UTC()
		return &t
	case string:
		return parseISO(v)
	default:
		return nil
	}
}

func parseISO(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasSuffix(s, "z") {
		s = strings.TrimSuffix(s, "z") + "Z"
	}
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// IsCanonical reports whether a raw stored value is already the canonical
// representation ToAwareUTC would produce, i.e. whether persisting the
// normalized value would be a no-op.
func IsCanonical(raw interface{}) bool {
	switch v := raw.(type) {
	case nil, primitive.DateTime:
		return true
	case time.Time:
		return v.Location() == time.UTC && !v.IsZero()
	case *time.Time:
		return v == nil || (v.Location() == time.UTC && !v.IsZero())
	default:
		return false
	}
}

// After reports whether t is set and strictly after now.
func After(t *time.Time, now time.Time) bool {
	return t != nil && t.After(now)
}
