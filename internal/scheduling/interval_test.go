package scheduling

import (
	"errors"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2030, 3, 4, hour, minute, 0, 0, time.UTC)
}

func between(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", between(9, 0, 9, 30), between(9, 0, 9, 30), true},
		{"partial", between(9, 0, 9, 30), between(9, 15, 9, 45), true},
		{"contained", between(9, 0, 10, 0), between(9, 15, 9, 30), true},
		{"back to back", between(9, 0, 9, 30), between(9, 30, 10, 0), false},
		{"disjoint", between(9, 0, 9, 30), between(11, 0, 11, 30), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.a, tc.b); got != tc.want {
				t.Fatalf("Overlaps(a, b) = %v, want %v", got, tc.want)
			}
			if got := Overlaps(tc.b, tc.a); got != tc.want {
				t.Fatalf("Overlaps(b, a) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewIntervalRejectsEmptyAndInverted(t *testing.T) {
	if _, err := NewInterval(at(9, 0), at(9, 0)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty interval, got %v", err)
	}
	if _, err := NewInterval(at(10, 0), at(9, 0)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for inverted interval, got %v", err)
	}
	if _, err := NewInterval(time.Time{}, at(9, 0)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing start, got %v", err)
	}
	iv, err := NewInterval(at(9, 0), at(9, 30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if iv.Duration() != 30*time.Minute {
		t.Fatalf("duration = %s", iv.Duration())
	}
}

func TestIntervalForAndShift(t *testing.T) {
	if _, err := IntervalFor(at(9, 0), 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for zero duration, got %v", err)
	}
	iv, err := IntervalFor(at(9, 0), 45*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !iv.End.Equal(at(9, 45)) {
		t.Fatalf("end = %s", iv.End)
	}
	shifted := iv.Shift(-time.Hour)
	if !shifted.Start.Equal(at(8, 0)) || shifted.Duration() != 45*time.Minute {
		t.Fatalf("unexpected shift result %+v", shifted)
	}
}
