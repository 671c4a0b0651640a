package money

import "time"

// Clock abstracts "the current instant". Callers must never call
// time.Now() directly inside the billing core — every operation that
// needs "now" takes a Clock (usually via the service context) so
// tests can substitute a fixed instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a test double that always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (f FixedClock) Now() time.Time { return f.At }

// NewFixedClock builds a FixedClock from an ISO date, anchored to
// America/Cancun noon, matching the spec's day-boundary convention for
// transaction dates.
func NewFixedClock(isoDate string) (FixedClock, error) {
	t, err := time.ParseInLocation("2006-01-02", isoDate, CancunLocation())
	if err != nil {
		return FixedClock{}, err
	}
	return FixedClock{At: t.Add(12 * time.Hour)}, nil
}

var cancunLoc *time.Location

// CancunLocation returns the America/Cancun timezone used for
// day-boundary reasoning throughout the core, falling back to a fixed
// UTC-5 offset if the tzdata database isn't available in the runtime
// environment (some minimal container images ship without it).
func CancunLocation() *time.Location {
	if cancunLoc != nil {
		return cancunLoc
	}
	loc, err := time.LoadLocation("America/Cancun")
	if err != nil {
		loc = time.FixedZone("America/Cancun", -5*60*60)
	}
	cancunLoc = loc
	return cancunLoc
}

// NoonOn anchors a date to noon in America/Cancun, the stability
// convention transaction dates use so a date never shifts day across a
// UTC conversion.
func NoonOn(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, CancunLocation())
}

// ISODate formats a time as an ISO-8601 calendar date in Cancun time.
func ISODate(t time.Time) string {
	return t.In(CancunLocation()).Format("2006-01-02")
}

// ParseISODate parses an ISO-8601 calendar date, anchoring it to noon
// in America/Cancun for stable day-boundary comparisons.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, CancunLocation())
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(12 * time.Hour), nil
}

// DaysBetween returns the whole number of days between two instants,
// truncated toward zero.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// FullMonthsLate returns max(0, full 30-day months between due and
// asOf), the "full month" convention the penalty engine uses.
func FullMonthsLate(due, asOf time.Time) int {
	days := DaysBetween(due, asOf)
	if days <= 0 {
		return 0
	}
	return days / 30
}
