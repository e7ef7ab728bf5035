// Package scheduling books clinic appointments, detects clinician and room
// contention, and searches for substitute slots when a request collides.
package scheduling

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

var validStatuses = map[Status]bool{
	StatusScheduled:  true,
	StatusConfirmed:  true,
	StatusCheckedIn:  true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
	StatusNoShow:     true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return validStatuses[s]
}

// Blocks reports whether an appointment in this status holds its slot.
// Cancelled appointments free their slot for reuse.
func (s Status) Blocks() bool {
	return s != StatusCancelled
}

// AppointmentType describes a kind of visit. Duration is in minutes.
type AppointmentType struct {
	ID                      string   `json:"id"`
	Name                    string   `json:"name"`
	Color                   string   `json:"color,omitempty"`
	Duration                int      `json:"duration"`
	DefaultPrice            float64  `json:"default_price,omitempty"`
	RequiredResources       []string `json:"required_resources,omitempty"`
	Description             string   `json:"description,omitempty"`
	PreparationInstructions string   `json:"preparation_instructions,omitempty"`
}

// Length returns the visit duration.
func (t AppointmentType) Length() time.Duration {
	return time.Duration(t.Duration) * time.Minute
}

// DefaultAppointmentTypes is the built-in visit catalog.
var DefaultAppointmentTypes = []AppointmentType{
	{
		ID:                      "checkup",
		Name:                    "Regular Checkup",
		Color:                   "#4CAF50",
		Duration:                30,
		DefaultPrice:            50,
		RequiredResources:       []string{"exam-room"},
		Description:             "Routine health examination",
		PreparationInstructions: "No special preparation needed",
	},
	{
		ID:                      "vaccination",
		Name:                    "Vaccination",
		Color:                   "#2196F3",
		Duration:                15,
		DefaultPrice:            35,
		RequiredResources:       []string{"exam-room"},
		Description:             "Pet vaccination appointment",
		PreparationInstructions: "Bring vaccination history",
	},
	{
		ID:                      "surgery",
		Name:                    "Surgery",
		Color:                   "#F44336",
		Duration:                120,
		DefaultPrice:            200,
		RequiredResources:       []string{"surgery-room", "recovery-room"},
		Description:             "Surgical procedure",
		PreparationInstructions: "No food 12 hours before surgery",
	},
	{
		ID:                      "dental",
		Name:                    "Dental Cleaning",
		Color:                   "#9C27B0",
		Duration:                60,
		DefaultPrice:            120,
		RequiredResources:       []string{"dental-room"},
		Description:             "Dental cleaning and examination",
		PreparationInstructions: "No food 8 hours before procedure",
	},
}

// LookupAppointmentType finds a catalog entry by id.
func LookupAppointmentType(id string) (AppointmentType, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, t := range DefaultAppointmentTypes {
		if t.ID == id {
			return t, true
		}
	}
	return AppointmentType{}, false
}

// Appointment is the persisted unit of scheduling.
type Appointment struct {
	ID                string          `json:"id"`
	ClinicID          string          `json:"clinic_id"`
	PatientID         string          `json:"patient_id,omitempty"`
	PatientName       string          `json:"patient_name,omitempty"`
	AppointmentType   AppointmentType `json:"appointment_type"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	Status            Status          `json:"status"`
	AssignedVet       string          `json:"assigned_vet"`
	RoomNumber        string          `json:"room_number,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	ReasonForVisit    string          `json:"reason_for_visit,omitempty"`
	RequiredEquipment []string        `json:"required_equipment,omitempty"`
	FollowupRequired  bool            `json:"followup_required"`
	CheckinTime       *time.Time      `json:"checkin_time,omitempty"`
	CheckoutTime      *time.Time      `json:"checkout_time,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Interval returns the appointment's half-open time range.
func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// Resources returns the clinician and room the appointment holds.
func (a *Appointment) Resources() Resources {
	return Resources{Vet: a.AssignedVet, Room: a.RoomNumber}
}

// Clone returns a deep copy so stored records never alias caller memory.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	c := *a
	if a.RequiredEquipment != nil {
		c.RequiredEquipment = append([]string(nil), a.RequiredEquipment...)
	}
	if a.AppointmentType.RequiredResources != nil {
		c.AppointmentType.RequiredResources = append([]string(nil), a.AppointmentType.RequiredResources...)
	}
	if a.CheckinTime != nil {
		t := *a.CheckinTime
		c.CheckinTime = &t
	}
	if a.CheckoutTime != nil {
		t := *a.CheckoutTime
		c.CheckoutTime = &t
	}
	return &c
}

// NewAppointment is the input to Engine.Create. When EndTime is nil the end
// is derived from the appointment type duration.
type NewAppointment struct {
	ClinicID          string           `json:"-"`
	PatientID         string           `json:"patient_id"`
	PatientName       string           `json:"patient_name"`
	AppointmentTypeID string           `json:"appointment_type_id,omitempty"`
	AppointmentType   *AppointmentType `json:"appointment_type,omitempty"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           *time.Time       `json:"end_time,omitempty"`
	Status            Status           `json:"status,omitempty"`
	AssignedVet       string           `json:"assigned_vet"`
	RoomNumber        string           `json:"room_number,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	ReasonForVisit    string           `json:"reason_for_visit,omitempty"`
	RequiredEquipment []string         `json:"required_equipment,omitempty"`
	FollowupRequired  bool             `json:"followup_required,omitempty"`
}

// resolve validates the request and returns the appointment type and
// candidate it describes.
func (n NewAppointment) resolve() (AppointmentType, Candidate, error) {
	var apptType AppointmentType
	switch {
	case n.AppointmentType != nil:
		apptType = *n.AppointmentType
	case strings.TrimSpace(n.AppointmentTypeID) != "":
		t, ok := LookupAppointmentType(n.AppointmentTypeID)
		if !ok {
			return AppointmentType{}, Candidate{}, validationErr("unknown appointment type %q", n.AppointmentTypeID)
		}
		apptType = t
	}
	if apptType.Duration < 0 {
		return AppointmentType{}, Candidate{}, validationErr("appointment type duration must not be negative")
	}
	if n.Status != "" && !n.Status.Valid() {
		return AppointmentType{}, Candidate{}, validationErr("invalid appointment status: %s", n.Status)
	}

	var end time.Time
	switch {
	case n.EndTime != nil:
		end = *n.EndTime
	case apptType.Duration > 0:
		end = n.StartTime.Add(apptType.Length())
	default:
		return AppointmentType{}, Candidate{}, validationErr("end_time or an appointment type duration is required")
	}

	interval, err := NewInterval(n.StartTime, end)
	if err != nil {
		return AppointmentType{}, Candidate{}, err
	}
	candidate := Candidate{
		ClinicID:  strings.TrimSpace(n.ClinicID),
		Interval:  interval,
		Resources: Resources{Vet: n.AssignedVet, Room: n.RoomNumber}.normalize(),
	}
	if err := candidate.Validate(); err != nil {
		return AppointmentType{}, Candidate{}, err
	}
	return apptType, candidate, nil
}

// AppointmentPatch is a partial update. Nil fields are left untouched.
type AppointmentPatch struct {
	PatientID         *string    `json:"patient_id,omitempty"`
	PatientName       *string    `json:"patient_name,omitempty"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	AssignedVet       *string    `json:"assigned_vet,omitempty"`
	RoomNumber        *string    `json:"room_number,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	ReasonForVisit    *string    `json:"reason_for_visit,omitempty"`
	RequiredEquipment []string   `json:"required_equipment,omitempty"`
	FollowupRequired  *bool      `json:"followup_required,omitempty"`
}

// touchesSchedule reports whether the patch changes time or resources.
func (p AppointmentPatch) touchesSchedule() bool {
	return p.StartTime != nil || p.EndTime != nil || p.AssignedVet != nil || p.RoomNumber != nil
}

// apply writes the patch onto a copy of a.
func (p AppointmentPatch) apply(a *Appointment) *Appointment {
	out := a.Clone()
	if p.PatientID != nil {
		out.PatientID = *p.PatientID
	}
	if p.PatientName != nil {
		out.PatientName = *p.PatientName
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.AssignedVet != nil {
		out.AssignedVet = strings.TrimSpace(*p.AssignedVet)
	}
	if p.RoomNumber != nil {
		out.RoomNumber = strings.TrimSpace(*p.RoomNumber)
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.ReasonForVisit != nil {
		out.ReasonForVisit = *p.ReasonForVisit
	}
	if p.RequiredEquipment != nil {
		out.RequiredEquipment = append([]string(nil), p.RequiredEquipment...)
	}
	if p.FollowupRequired != nil {
		out.FollowupRequired = *p.FollowupRequired
	}
	return out
}

// ListFilter narrows ListAppointments. From and To bound the start time
// inclusively; zero values disable a bound.
type ListFilter struct {
	From      time.Time
	To        time.Time
	Status    Status
	VetID     string
	PatientID string
}

// Matches reports whether a satisfies every set criterion.
func (f ListFilter) Matches(a *Appointment) bool {
	if !f.From.IsZero() && a.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.StartTime.After(f.To) {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.VetID != "" && a.AssignedVet != f.VetID {
		return false
	}
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	return true
}
