package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Engine is the single write path for appointments. Every check re-reads the
// store; nothing is cached between calls.
type Engine struct {
	store    Store
	locker   Locker
	notifier ChangeNotifier
	hours    HoursProvider
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewEngine creates an engine over store with an in-process locker.
func NewEngine(store Store, logger *logging.Logger) *Engine {
	if store == nil {
		panic("scheduling: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:  store,
		locker: NewLocalLocker(0),
		logger: logger,
		tracer: otel.Tracer("clinic.internal.scheduling"),
		now:    time.Now,
	}
}

// WithLocker replaces the in-process locker, e.g. with a RedisLocker.
func (e *Engine) WithLocker(locker Locker) *Engine {
	if locker != nil {
		e.locker = locker
	}
	return e
}

// WithNotifier sets where committed changes are published.
func (e *Engine) WithNotifier(notifier ChangeNotifier) *Engine {
	e.notifier = notifier
	return e
}

// WithHours sets the operating-hours source used by the alternative finder.
func (e *Engine) WithHours(hours HoursProvider) *Engine {
	e.hours = hours
	return e
}

func (e *Engine) WithMetrics(m *metrics.SchedulingMetrics) *Engine {
	e.metrics = m
	return e
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Create books a new appointment if neither its clinician nor its room is
// taken for any part of the requested interval.
func (e *Engine) Create(ctx context.Context, req NewAppointment) (*Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.create")
	defer span.End()
	defer e.observeLatency("create", e.now())
	span.SetAttributes(attribute.String("clinic.id", req.ClinicID))

	apptType, candidate, err := req.resolve()
	if err != nil {
		e.metrics.ObserveBooking("create", outcome(err))
		return nil, err
	}
	status := StatusScheduled
	if req.Status != "" && req.Status != StatusCancelled {
		status = req.Status
	}

	unlock, err := e.locker.Lock(ctx, candidate.Resources.LockKeys(candidate.ClinicID)...)
	if err != nil {
		span.RecordError(err)
		e.metrics.ObserveBooking("create", outcome(err))
		return nil, err
	}

	appt, err := func() (*Appointment, error) {
		defer unlock()
		if err := e.ensureFree(ctx, candidate, ""); err != nil {
			return nil, err
		}
		now := e.now().UTC()
		appt := &Appointment{
			ID:                uuid.NewString(),
			ClinicID:          candidate.ClinicID,
			PatientID:         strings.TrimSpace(req.PatientID),
			PatientName:       strings.TrimSpace(req.PatientName),
			AppointmentType:   apptType,
			StartTime:         candidate.Interval.Start,
			EndTime:           candidate.Interval.End,
			Status:            status,
			AssignedVet:       candidate.Resources.Vet,
			RoomNumber:        candidate.Resources.Room,
			Notes:             req.Notes,
			ReasonForVisit:    req.ReasonForVisit,
			RequiredEquipment: append([]string(nil), req.RequiredEquipment...),
			FollowupRequired:  req.FollowupRequired,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := e.store.Insert(ctx, appt); err != nil {
			return nil, fmt.Errorf("scheduling: insert appointment: %w", err)
		}
		return appt, nil
	}()
	e.metrics.ObserveBooking("create", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	e.logger.WithClinic(appt.ClinicID).Info("appointment created",
		"appointment_id", appt.ID,
		"vet", appt.AssignedVet,
		"room", appt.RoomNumber,
	)
	e.publish(ctx, ChangeCreated, appt)
	return appt, nil
}

// Reschedule moves an appointment to a new interval, keeping its clinician
// and room. The appointment never conflicts with its own previous slot.
func (e *Engine) Reschedule(ctx context.Context, clinicID, id string, start, end time.Time) (*Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	defer e.observeLatency("reschedule", e.now())
	span.SetAttributes(attribute.String("clinic.id", clinicID), attribute.String("appointment.id", id))

	interval, err := NewInterval(start, end)
	if err == nil {
		err = requireIDs(clinicID, id)
	}
	if err != nil {
		e.metrics.ObserveBooking("reschedule", outcome(err))
		return nil, err
	}

	appt, err := e.mutate(ctx, clinicID, id, func(current *Appointment) (*Appointment, bool, error) {
		next := current.Clone()
		next.StartTime = interval.Start
		next.EndTime = interval.End
		return next, true, nil
	})
	e.metrics.ObserveBooking("reschedule", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.logger.WithClinic(clinicID).Info("appointment rescheduled",
		"appointment_id", id,
		"start", appt.StartTime,
		"end", appt.EndTime,
	)
	e.publish(ctx, ChangeRescheduled, appt)
	return appt, nil
}

// UpdateStatus applies a lifecycle transition. Any valid status may follow
// any other. Reviving a cancelled appointment reclaims its slot, so that
// transition is conflict-checked like a reschedule.
func (e *Engine) UpdateStatus(ctx context.Context, clinicID, id string, status Status) (*Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.update_status")
	defer span.End()
	defer e.observeLatency("update_status", e.now())
	span.SetAttributes(
		attribute.String("clinic.id", clinicID),
		attribute.String("appointment.id", id),
		attribute.String("appointment.status", string(status)),
	)

	err := requireIDs(clinicID, id)
	if err == nil && !status.Valid() {
		err = validationErr("invalid appointment status: %s", status)
	}
	if err != nil {
		e.metrics.ObserveBooking("update_status", outcome(err))
		return nil, err
	}

	appt, err := e.mutate(ctx, clinicID, id, func(current *Appointment) (*Appointment, bool, error) {
		next := current.Clone()
		next.Status = status
		now := e.now().UTC()
		switch status {
		case StatusCheckedIn:
			if next.CheckinTime == nil {
				next.CheckinTime = &now
			}
		case StatusCompleted:
			if next.CheckoutTime == nil {
				next.CheckoutTime = &now
			}
		}
		return next, !current.Status.Blocks() && status.Blocks(), nil
	})
	e.metrics.ObserveBooking("update_status", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.logger.WithClinic(clinicID).Info("appointment status updated",
		"appointment_id", id,
		"status", status,
	)
	e.publish(ctx, ChangeStatusChanged, appt)
	return appt, nil
}

// Update applies a partial change. When the patch moves the appointment or
// changes its clinician or room, the result is conflict-checked like a
// reschedule.
func (e *Engine) Update(ctx context.Context, clinicID, id string, patch AppointmentPatch) (*Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.update")
	defer span.End()
	defer e.observeLatency("update", e.now())
	span.SetAttributes(attribute.String("clinic.id", clinicID), attribute.String("appointment.id", id))

	if err := requireIDs(clinicID, id); err != nil {
		e.metrics.ObserveBooking("update", outcome(err))
		return nil, err
	}

	appt, err := e.mutate(ctx, clinicID, id, func(current *Appointment) (*Appointment, bool, error) {
		next := patch.apply(current)
		if !patch.touchesSchedule() {
			return next, false, nil
		}
		if _, err := NewInterval(next.StartTime, next.EndTime); err != nil {
			return nil, false, err
		}
		if next.AssignedVet == "" {
			return nil, false, validationErr("assigned vet is required")
		}
		return next, true, nil
	})
	e.metrics.ObserveBooking("update", outcome(err))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	e.logger.WithClinic(clinicID).Info("appointment updated", "appointment_id", id)
	e.publish(ctx, ChangeUpdated, appt)
	return appt, nil
}

// mutateFunc derives the next version of an appointment and reports whether
// it needs a conflict check.
type mutateFunc func(current *Appointment) (next *Appointment, check bool, err error)

// mutate serialises writers of one appointment, then, when the change needs
// a check, also locks the old and new resources before detecting.
func (e *Engine) mutate(ctx context.Context, clinicID, id string, fn mutateFunc) (*Appointment, error) {
	unlockAppt, err := e.locker.Lock(ctx, appointmentLockKey(clinicID, id))
	if err != nil {
		return nil, err
	}
	defer unlockAppt()

	current, err := e.store.Get(ctx, clinicID, id)
	if err != nil {
		return nil, wrapStoreErr("load appointment", err)
	}
	next, check, err := fn(current)
	if err != nil {
		return nil, err
	}

	if check {
		keys := append(current.Resources().LockKeys(clinicID), next.Resources().LockKeys(clinicID)...)
		unlockRes, err := e.locker.Lock(ctx, keys...)
		if err != nil {
			return nil, err
		}
		defer unlockRes()

		candidate := Candidate{ClinicID: clinicID, Interval: next.Interval(), Resources: next.Resources()}
		if err := e.ensureFree(ctx, candidate, id); err != nil {
			return nil, err
		}
	}

	next.UpdatedAt = e.now().UTC()
	if err := e.store.Update(ctx, next); err != nil {
		return nil, wrapStoreErr("update appointment", err)
	}
	return next, nil
}

// ensureFree runs the detector against current state and turns conflicts
// into a SlotUnavailableError.
func (e *Engine) ensureFree(ctx context.Context, candidate Candidate, excludeID string) error {
	conflicts, err := e.FindConflicts(ctx, candidate, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		e.logger.WithClinic(candidate.ClinicID).Info("appointment slot unavailable",
			"vet", candidate.Resources.Vet,
			"room", candidate.Resources.Room,
			"conflicts", len(conflicts),
		)
		return &SlotUnavailableError{Conflicts: conflicts}
	}
	return nil
}

// FindConflicts loads the clinic's appointments and runs the detector.
func (e *Engine) FindConflicts(ctx context.Context, candidate Candidate, excludeID string) ([]*Appointment, error) {
	candidate.Resources = candidate.Resources.normalize()
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	existing, err := e.store.ListByClinic(ctx, candidate.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	conflicts := FindConflicts(existing, candidate, excludeID)
	e.metrics.ObserveConflictCheck(len(conflicts) > 0)
	return conflicts, nil
}

// ConflictQuery is the read-only conflict check input.
type ConflictQuery struct {
	ClinicID  string    `json:"-"`
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`
	Vet       string    `json:"vet_id"`
	Room      string    `json:"room_number,omitempty"`
	ExcludeID string    `json:"exclude_id,omitempty"`
}

// ConflictResult reports the outcome of a conflict check.
type ConflictResult struct {
	HasConflicts bool           `json:"has_conflicts"`
	Conflicts    []*Appointment `json:"conflicts"`
}

// CheckConflicts answers whether a slot is free without writing anything.
func (e *Engine) CheckConflicts(ctx context.Context, q ConflictQuery) (ConflictResult, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.check_conflicts")
	defer span.End()
	defer e.observeLatency("check_conflicts", e.now())
	span.SetAttributes(attribute.String("clinic.id", q.ClinicID))

	interval, err := NewInterval(q.Start, q.End)
	if err != nil {
		return ConflictResult{}, err
	}
	candidate := Candidate{
		ClinicID:  strings.TrimSpace(q.ClinicID),
		Interval:  interval,
		Resources: Resources{Vet: q.Vet, Room: q.Room},
	}
	conflicts, err := e.FindConflicts(ctx, candidate, q.ExcludeID)
	if err != nil {
		span.RecordError(err)
		return ConflictResult{}, err
	}
	if conflicts == nil {
		conflicts = []*Appointment{}
	}
	return ConflictResult{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}, nil
}

// Get returns one appointment of the clinic.
func (e *Engine) Get(ctx context.Context, clinicID, id string) (*Appointment, error) {
	if err := requireIDs(clinicID, id); err != nil {
		return nil, err
	}
	appt, err := e.store.Get(ctx, clinicID, id)
	if err != nil {
		return nil, wrapStoreErr("load appointment", err)
	}
	return appt, nil
}

// List returns the clinic's appointments matching filter, ordered by start
// time and then id.
func (e *Engine) List(ctx context.Context, clinicID string, filter ListFilter) ([]*Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.list")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.id", clinicID))

	if strings.TrimSpace(clinicID) == "" {
		return nil, validationErr("clinic id is required")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, validationErr("to must not be before from")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationErr("invalid appointment status: %s", filter.Status)
	}
	all, err := e.store.ListByClinic(ctx, clinicID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	out := make([]*Appointment, 0, len(all))
	for _, appt := range all {
		if filter.Matches(appt) {
			out = append(out, appt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (e *Engine) publish(ctx context.Context, kind ChangeKind, appt *Appointment) {
	if e.notifier == nil {
		return
	}
	change := Change{Kind: kind, ClinicID: appt.ClinicID, Appointment: appt.Clone(), OccurredAt: e.now().UTC()}
	if err := e.notifier.Notify(context.WithoutCancel(ctx), change); err != nil {
		e.logger.WithClinic(appt.ClinicID).Warn("failed to publish appointment change",
			"appointment_id", appt.ID,
			"kind", kind,
			"error", err,
		)
	}
}

func (e *Engine) observeLatency(operation string, started time.Time) {
	e.metrics.ObserveLatency(operation, e.now().Sub(started).Seconds())
}

func requireIDs(clinicID, id string) error {
	if strings.TrimSpace(clinicID) == "" {
		return validationErr("clinic id is required")
	}
	if strings.TrimSpace(id) == "" {
		return validationErr("appointment id is required")
	}
	return nil
}

func wrapStoreErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("scheduling: %s: %w", op, err)
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSlotUnavailable):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOutOfHours):
		return "out_of_hours"
	case errors.Is(err, ErrResourceBusy):
		return "busy"
	default:
		return "error"
	}
}
