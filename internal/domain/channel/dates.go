package channel

import "time"

// DateLayout is the canonical internal date format
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a date in the canonical layout
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DateRange is an inclusive range of days
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange creates a range, swapping the bounds when reversed
func NewDateRange(from, to time.Time) DateRange {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		from, to = to, from
	}
	return DateRange{From: from, To: to}
}

// Contains reports whether day falls within the range
func (r DateRange) Contains(day time.Time) bool {
	day = Day(day)
	return !day.Before(r.From) && !day.After(r.To)
}

// Days returns the number of days in the range
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// Overlaps reports whether both ranges share at least one day
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.To.Before(other.From) && !other.To.Before(r.From)
}

// EachDay returns every day of the range in order
func (r DateRange) EachDay() []time.Time {
	if r.To.Before(r.From) {
		return nil
	}
	days := make([]time.Time, 0, r.Days())
	for d := r.From; !d.After(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
