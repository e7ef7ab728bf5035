package scheduling

import (
	"context"
	"errors"
	"time"
)

// ChangeKind names what happened to an appointment.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "appointment.created"
	ChangeRescheduled   ChangeKind = "appointment.rescheduled"
	ChangeStatusChanged ChangeKind = "appointment.status_changed"
	ChangeUpdated       ChangeKind = "appointment.updated"
)

// Change is published after a write has been committed.
type Change struct {
	Kind        ChangeKind   `json:"kind"`
	ClinicID    string       `json:"clinic_id"`
	Appointment *Appointment `json:"appointment"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// ChangeNotifier receives committed appointment changes. A failing notifier
// never rolls back the write that produced the change.
type ChangeNotifier interface {
	Notify(ctx context.Context, change Change) error
}

// MultiNotifier fans a change out to every notifier and joins their errors.
type MultiNotifier []ChangeNotifier

func (m MultiNotifier) Notify(ctx context.Context, change Change) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFunc adapts a function to ChangeNotifier.
type NotifierFunc func(ctx context.Context, change Change) error

func (f NotifierFunc) Notify(ctx context.Context, change Change) error {
	return f(ctx, change)
}
