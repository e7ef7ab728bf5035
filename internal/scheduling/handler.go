package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler exposes the engine over HTTP JSON. Every route is scoped to the
// clinic found in the request context.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

// NewHandler creates an appointments HTTP handler.
func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes mounts appointment endpoints on r. Expects the clinic
// middleware to have run.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/appointment-types", h.listAppointmentTypes)
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.listAppointments)
		r.Post("/", h.createAppointment)
		r.Post("/conflicts", h.checkConflicts)
		r.Post("/alternatives", h.findAlternatives)
		r.Post("/smart-schedule", h.smartSchedule)
		r.Get("/{appointmentID}", h.getAppointment)
		r.Patch("/{appointmentID}", h.updateAppointment)
		r.Post("/{appointmentID}/reschedule", h.rescheduleAppointment)
		r.Put("/{appointmentID}/status", h.updateStatus)
	})
}

func (h *Handler) listAppointmentTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"appointment_types": DefaultAppointmentTypes})
}

func (h *Handler) createAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var req NewAppointment
	if !decodeBody(w, r, &req) {
		return
	}
	req.ClinicID = clinicID

	appt, err := h.engine.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) checkConflicts(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var q ConflictQuery
	if !decodeBody(w, r, &q) {
		return
	}
	q.ClinicID = clinicID

	res, err := h.engine.CheckConflicts(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (h *Handler) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	appt, err := h.engine.Reschedule(r.Context(), clinicID, chi.URLParam(r, "appointmentID"), req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	appt, err := h.engine.UpdateStatus(r.Context(), clinicID, chi.URLParam(r, "appointmentID"), req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) updateAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var patch AppointmentPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	appt, err := h.engine.Update(r.Context(), clinicID, chi.URLParam(r, "appointmentID"), patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	appt, err := h.engine.Get(r.Context(), clinicID, chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	appts, err := h.engine.List(r.Context(), clinicID, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"appointments": appts,
		"count":        len(appts),
	})
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:    Status(strings.TrimSpace(q.Get("status"))),
		VetID:     strings.TrimSpace(q.Get("vet_id")),
		PatientID: strings.TrimSpace(q.Get("patient_id")),
	}
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := strings.TrimSpace(q.Get(bound.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ListFilter{}, validationErr("%s must be RFC3339", bound.name)
		}
		*bound.dst = t
	}
	return filter, nil
}

// alternativeRequest names the slot length either directly, through an
// appointment type, or with an end time.
type alternativeRequest struct {
	StartTime         time.Time  `json:"start_time"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	DurationMinutes   int        `json:"duration_minutes,omitempty"`
	AppointmentTypeID string     `json:"appointment_type_id,omitempty"`
	Vet               string     `json:"vet_id"`
	Room              string     `json:"room_number,omitempty"`
	ExcludeID         string     `json:"exclude_id,omitempty"`
}

func (req alternativeRequest) query(clinicID string) (AlternativeQuery, error) {
	q := AlternativeQuery{
		ClinicID:  clinicID,
		Start:     req.StartTime,
		Vet:       req.Vet,
		Room:      req.Room,
		ExcludeID: req.ExcludeID,
	}
	switch {
	case req.DurationMinutes > 0:
		q.Duration = time.Duration(req.DurationMinutes) * time.Minute
	case req.EndTime != nil:
		q.Duration = req.EndTime.Sub(req.StartTime)
	case req.AppointmentTypeID != "":
		t, ok := LookupAppointmentType(req.AppointmentTypeID)
		if !ok {
			return AlternativeQuery{}, validationErr("unknown appointment type %q", req.AppointmentTypeID)
		}
		q.Duration = t.Length()
	default:
		return AlternativeQuery{}, validationErr("duration_minutes, end_time or appointment_type_id is required")
	}
	return q, nil
}

func (h *Handler) findAlternatives(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var req alternativeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	q, err := req.query(clinicID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.engine.FindAlternatives(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alternatives": slots})
}

func (h *Handler) smartSchedule(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := h.clinicID(w, r)
	if !ok {
		return
	}
	var req alternativeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	q, err := req.query(clinicID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.engine.SmartSchedule(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) clinicID(w http.ResponseWriter, r *http.Request) (string, bool) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "clinic id required"})
		return "", false
	}
	return clinicID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation_error", Message: "invalid JSON body"})
		return false
	}
	return true
}

type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Conflicts []*Appointment `json:"conflicts,omitempty"`
}

// writeError maps engine errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Message: err.Error()}
	status := http.StatusInternalServerError

	var slotErr *SlotUnavailableError
	switch {
	case errors.As(err, &slotErr):
		status = http.StatusConflict
		body.Error = "slot_unavailable"
		body.Conflicts = slotErr.Conflicts
	case errors.Is(err, ErrSlotUnavailable):
		status = http.StatusConflict
		body.Error = "slot_unavailable"
	case errors.Is(err, ErrValidation):
		status = http.StatusBadRequest
		body.Error = "validation_error"
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
		body.Error = "not_found"
	case errors.Is(err, ErrOutOfHours):
		status = http.StatusUnprocessableEntity
		body.Error = "out_of_hours"
	case errors.Is(err, ErrResourceBusy):
		status = http.StatusServiceUnavailable
		body.Error = "resource_busy"
	default:
		body.Error = "internal_error"
		body.Message = "internal server error"
		clinicID, _ := tenancy.ClinicIDFromContext(r.Context())
		h.logger.WithClinic(clinicID).Error("appointment request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
