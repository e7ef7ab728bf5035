package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

type outboxWriter interface {
	Insert(ctx context.Context, clinicID string, eventType string, payload any) (uuid.UUID, error)
}

// OutboxNotifier records scheduling changes in the outbox so the Deliverer
// can forward them after the request returns.
type OutboxNotifier struct {
	outbox outboxWriter
}

func NewOutboxNotifier(outbox outboxWriter) *OutboxNotifier {
	if outbox == nil {
		panic("events: outbox required")
	}
	return &OutboxNotifier{outbox: outbox}
}

func (n *OutboxNotifier) Notify(ctx context.Context, change scheduling.Change) error {
	evt := NewAppointmentChanged(uuid.NewString(), change)
	if _, err := n.outbox.Insert(ctx, change.ClinicID, evt.Kind, evt); err != nil {
		return fmt.Errorf("events: record %s: %w", change.Kind, err)
	}
	return nil
}
