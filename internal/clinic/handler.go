package clinic

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Handler provides HTTP endpoints for clinic hours management.
type Handler struct {
	store  ConfigStore
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates a new clinic config HTTP handler.
func NewHandler(store ConfigStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes mounts the clinic endpoints. The clinic comes from the
// request context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/clinics/hours", h.GetHours)
	r.Put("/clinics/hours", h.UpdateHours)
}

// GetHours returns the clinic configuration.
// GET /clinics/hours
func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Error("failed to encode clinic config", "clinic_id", clinicID, "error", err)
	}
}

// UpdateHoursRequest is the request body for updating clinic hours.
type UpdateHoursRequest struct {
	Name           string         `json:"name,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
	OperatingHours *DayHours      `json:"operating_hours,omitempty"`
	BusinessHours  *BusinessHours `json:"business_hours,omitempty"`
}

// UpdateHours creates or updates the clinic configuration.
// PUT /clinics/hours
func (h *Handler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error": "clinic_id required"}`, http.StatusBadRequest)
		return
	}

	var req UpdateHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	cfg, err := h.store.Get(r.Context(), clinicID)
	if err != nil {
		h.logger.Error("failed to get clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	// partial update
	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Timezone != "" {
		cfg.Timezone = req.Timezone
	}
	if req.OperatingHours != nil {
		cfg.OperatingHours = *req.OperatingHours
	}
	if req.BusinessHours != nil {
		cfg.BusinessHours = *req.BusinessHours
	}
	if err := cfg.Validate(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "validation_error", "message": err.Error()})
		return
	}
	cfg.UpdatedAt = h.now().UTC()

	if err := h.store.Set(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save clinic config", "clinic_id", clinicID, "error", err)
		http.Error(w, `{"error": "failed to save config"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("clinic hours updated",
		"clinic_id", clinicID,
		"open", cfg.OperatingHours.Open,
		"close", cfg.OperatingHours.Close,
		"timezone", cfg.Timezone,
	)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		h.logger.Error("failed to encode clinic config", "clinic_id", clinicID, "error", err)
	}
}
