package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
)

const (
	ringSize        = 3
	maxAlternatives = 5
)

// HoursProvider resolves a clinic's operating window for the local day that
// contains day. The window is half-open: a visit may end exactly at end.
type HoursProvider interface {
	DayWindow(ctx context.Context, clinicID string, day time.Time) (start, end time.Time, err error)
}

// DailyHours is a fixed window applied to every day, expressed as offsets
// from local midnight.
type DailyHours struct {
	Open     time.Duration
	Close    time.Duration
	Location *time.Location
}

func (h DailyHours) DayWindow(_ context.Context, _ string, day time.Time) (time.Time, time.Time, error) {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := day.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(h.Open), midnight.Add(h.Close), nil
}

// AlternativeQuery describes the slot a caller wanted.
type AlternativeQuery struct {
	ClinicID  string        `json:"-"`
	Start     time.Time     `json:"start_time"`
	Duration  time.Duration `json:"-"`
	Vet       string        `json:"vet_id"`
	Room      string        `json:"room_number,omitempty"`
	ExcludeID string        `json:"exclude_id,omitempty"`
}

// Finder searches for conflict-free substitutes around a requested slot.
// Results are an advisory snapshot: a later Create may still lose the slot.
type Finder struct {
	store   Store
	hours   HoursProvider
	metrics *metrics.SchedulingMetrics
	now     func() time.Time
}

func NewFinder(store Store, hours HoursProvider) *Finder {
	return &Finder{store: store, hours: hours, now: time.Now}
}

func (f *Finder) WithClock(now func() time.Time) *Finder {
	if now != nil {
		f.now = now
	}
	return f
}

func (f *Finder) WithMetrics(m *metrics.SchedulingMetrics) *Finder {
	f.metrics = m
	return f
}

// FindAlternatives returns up to five conflict-free intervals of the same
// length: earlier slots nearest first, then later slots, then the opening of
// the next day when the same-day ring produced fewer than three.
//
// Earlier slots that start before the finder's clock are skipped, so the same
// query can yield different results as the day progresses.
func (f *Finder) FindAlternatives(ctx context.Context, q AlternativeQuery) ([]Interval, error) {
	q.ClinicID = strings.TrimSpace(q.ClinicID)
	resources := Resources{Vet: q.Vet, Room: q.Room}.normalize()
	w, err := f.window(ctx, q, resources)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd, now := w.dayStart, w.dayEnd, w.now

	d := w.requested.Duration()
	slots := make([]Interval, 0, 2*ringSize+1)
	for i := 1; i <= ringSize; i++ {
		slot := w.requested.Shift(-time.Duration(i) * d)
		if !slot.Start.Before(dayStart) && !slot.Start.Before(now) {
			slots = append(slots, slot)
		}
	}
	for i := 1; i <= ringSize; i++ {
		slot := w.requested.Shift(time.Duration(i) * d)
		if !slot.End.After(dayEnd) {
			slots = append(slots, slot)
		}
	}
	if len(slots) < ringSize {
		nextStart, _, err := f.hours.DayWindow(ctx, q.ClinicID, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("scheduling: resolve operating hours: %w", err)
		}
		slots = append(slots, Interval{Start: nextStart, End: nextStart.Add(d)})
	}

	snapshot, err := f.store.ListByClinic(ctx, q.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	out := make([]Interval, 0, maxAlternatives)
	for _, slot := range slots {
		candidate := Candidate{ClinicID: q.ClinicID, Interval: slot, Resources: resources}
		if len(FindConflicts(snapshot, candidate, q.ExcludeID)) > 0 {
			continue
		}
		out = append(out, slot)
		if len(out) == maxAlternatives {
			break
		}
	}
	f.metrics.ObserveAlternatives(len(out))
	return out, nil
}

type requestWindow struct {
	requested Interval
	dayStart  time.Time
	dayEnd    time.Time
	now       time.Time
}

// window validates the request against the clinic's hours for that day and
// the current time.
func (f *Finder) window(ctx context.Context, q AlternativeQuery, resources Resources) (requestWindow, error) {
	requested, err := IntervalFor(q.Start, q.Duration)
	if err != nil {
		return requestWindow{}, err
	}
	if err := (Candidate{ClinicID: q.ClinicID, Interval: requested, Resources: resources}).Validate(); err != nil {
		return requestWindow{}, err
	}
	if f.hours == nil {
		return requestWindow{}, fmt.Errorf("scheduling: operating hours not configured")
	}

	dayStart, dayEnd, err := f.hours.DayWindow(ctx, q.ClinicID, q.Start)
	if err != nil {
		return requestWindow{}, fmt.Errorf("scheduling: resolve operating hours: %w", err)
	}
	if requested.Start.Before(dayStart) || !requested.Start.Before(dayEnd) || requested.End.After(dayEnd) {
		return requestWindow{}, fmt.Errorf("%w: %s-%s is outside %s-%s", ErrOutOfHours,
			requested.Start.Format(time.RFC3339), requested.End.Format(time.RFC3339),
			dayStart.Format(time.RFC3339), dayEnd.Format(time.RFC3339))
	}
	now := f.now()
	if requested.Start.Before(now) {
		return requestWindow{}, validationErr("cannot schedule appointments in the past")
	}
	return requestWindow{requested: requested, dayStart: dayStart, dayEnd: dayEnd, now: now}, nil
}

// Finder returns an alternative finder sharing the engine's store, hours,
// clock and metrics.
func (e *Engine) Finder() *Finder {
	return NewFinder(e.store, e.hours).WithClock(e.now).WithMetrics(e.metrics)
}

// FindAlternatives delegates to the engine's Finder.
func (e *Engine) FindAlternatives(ctx context.Context, q AlternativeQuery) ([]Interval, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.find_alternatives")
	defer span.End()
	defer e.observeLatency("find_alternatives", e.now())

	slots, err := e.Finder().FindAlternatives(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return slots, nil
}

// SmartScheduleResult is the answer to an interactive booking attempt.
type SmartScheduleResult struct {
	Available    bool           `json:"available"`
	Requested    Interval       `json:"requested"`
	Conflicts    []*Appointment `json:"conflicts,omitempty"`
	Alternatives []Interval     `json:"alternatives,omitempty"`
}

// SmartSchedule checks the requested slot and, when it is taken, returns the
// substitutes a receptionist can offer instead. It never writes.
func (e *Engine) SmartSchedule(ctx context.Context, q AlternativeQuery) (SmartScheduleResult, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.smart_schedule")
	defer span.End()
	defer e.observeLatency("smart_schedule", e.now())

	q.ClinicID = strings.TrimSpace(q.ClinicID)
	resources := Resources{Vet: q.Vet, Room: q.Room}.normalize()
	finder := e.Finder()
	w, err := finder.window(ctx, q, resources)
	if err != nil {
		return SmartScheduleResult{}, err
	}
	requested := w.requested
	candidate := Candidate{ClinicID: q.ClinicID, Interval: requested, Resources: resources}
	conflicts, err := e.FindConflicts(ctx, candidate, q.ExcludeID)
	if err != nil {
		span.RecordError(err)
		return SmartScheduleResult{}, err
	}
	result := SmartScheduleResult{Requested: requested}
	if len(conflicts) == 0 {
		result.Available = true
		return result, nil
	}
	result.Conflicts = conflicts
	alternatives, err := finder.FindAlternatives(ctx, q)
	if err != nil {
		span.RecordError(err)
		return SmartScheduleResult{}, err
	}
	result.Alternatives = alternatives
	return result, nil
}
