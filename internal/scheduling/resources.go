package scheduling

import (
	"fmt"
	"strings"
)

// Resources are the contended dimensions of a booking inside one clinic.
// An empty Room means the booking needs no room.
type Resources struct {
	Vet  string `json:"vet_id"`
	Room string `json:"room_number,omitempty"`
}

func (r Resources) normalize() Resources {
	return Resources{Vet: strings.TrimSpace(r.Vet), Room: strings.TrimSpace(r.Room)}
}

// HasRoom reports whether room contention has to be checked.
func (r Resources) HasRoom() bool {
	return r.Room != ""
}

// ContendsWith reports whether an existing appointment holds one of these
// resources: the same clinician, or the same room when a room is requested.
func (r Resources) ContendsWith(a *Appointment) bool {
	if a.AssignedVet == r.Vet {
		return true
	}
	return r.HasRoom() && a.RoomNumber == r.Room
}

// LockKeys lists the lock names guarding these resources within a clinic.
func (r Resources) LockKeys(clinicID string) []string {
	keys := []string{vetLockKey(clinicID, r.Vet)}
	if r.HasRoom() {
		keys = append(keys, roomLockKey(clinicID, r.Room))
	}
	return keys
}

func vetLockKey(clinicID, vet string) string {
	return fmt.Sprintf("scheduling:lock:%s:vet:%s", clinicID, vet)
}

func roomLockKey(clinicID, room string) string {
	return fmt.Sprintf("scheduling:lock:%s:room:%s", clinicID, room)
}

func appointmentLockKey(clinicID, id string) string {
	return fmt.Sprintf("scheduling:lock:%s:appointment:%s", clinicID, id)
}

// Candidate is a proposed, not yet committed booking.
type Candidate struct {
	ClinicID  string
	Interval  Interval
	Resources Resources
}

// Validate enforces the candidate invariants.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.ClinicID) == "" {
		return validationErr("clinic id is required")
	}
	if strings.TrimSpace(c.Resources.Vet) == "" {
		return validationErr("assigned vet is required")
	}
	if !c.Interval.Start.Before(c.Interval.End) {
		return validationErr("start must be before end")
	}
	return nil
}
