package events

import (
	"time"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// AppointmentChangedV1 is the payload published for every appointment write.
type AppointmentChangedV1 struct {
	EventID       string            `json:"event_id"`
	ClinicID      string            `json:"clinic_id"`
	Kind          string            `json:"kind"`
	AppointmentID string            `json:"appointment_id"`
	PatientID     string            `json:"patient_id,omitempty"`
	AssignedVet   string            `json:"assigned_vet"`
	RoomNumber    string            `json:"room_number,omitempty"`
	Status        scheduling.Status `json:"status"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewAppointmentChanged flattens a scheduling change into its event payload.
func NewAppointmentChanged(eventID string, change scheduling.Change) AppointmentChangedV1 {
	evt := AppointmentChangedV1{
		EventID:    eventID,
		ClinicID:   change.ClinicID,
		Kind:       string(change.Kind),
		OccurredAt: change.OccurredAt.UTC(),
	}
	if appt := change.Appointment; appt != nil {
		evt.AppointmentID = appt.ID
		evt.PatientID = appt.PatientID
		evt.AssignedVet = appt.AssignedVet
		evt.RoomNumber = appt.RoomNumber
		evt.Status = appt.Status
		evt.StartTime = appt.StartTime.UTC()
		evt.EndTime = appt.EndTime.UTC()
	}
	return evt
}
