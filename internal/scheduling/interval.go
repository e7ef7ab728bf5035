package scheduling

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds an interval, rejecting empty or inverted ranges.
func NewInterval(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() {
		return Interval{}, validationErr("start and end are required")
	}
	if !start.Before(end) {
		return Interval{}, validationErr("start must be before end")
	}
	return Interval{Start: start, End: end}, nil
}

// IntervalFor derives an interval from a start and a duration.
func IntervalFor(start time.Time, d time.Duration) (Interval, error) {
	if d <= 0 {
		return Interval{}, validationErr("duration must be positive")
	}
	return NewInterval(start, start.Add(d))
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Shift moves the interval by d, keeping its length.
func (i Interval) Shift(d time.Duration) Interval {
	return Interval{Start: i.Start.Add(d), End: i.End.Add(d)}
}

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}
