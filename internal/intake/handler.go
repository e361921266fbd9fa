package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/appointment-engine/internal/actor"
	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

type intakeService interface {
	Appointment(ctx context.Context, appointmentID uuid.UUID) (*appointments.Appointment, error)
	GetStatus(ctx context.Context, appointmentID uuid.UUID) (*Status, error)
	Submit(ctx context.Context, appointmentID uuid.UUID, data json.RawMessage) (*Form, error)
}

// Handler serves /patient/intake-form.
type Handler struct {
	gate   intakeService
	logger *logging.Logger
}

func NewHandler(gate intakeService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{gate: gate, logger: logger}
}

type submitRequest struct {
	AppointmentID string          `json:"appointmentId"`
	FormData      json.RawMessage `json:"formData"`
}

// Get handles GET /patient/intake-form?appointmentId=.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("appointmentId")))
	if err != nil {
		http.Error(w, "appointmentId must be a valid id", http.StatusBadRequest)
		return
	}
	if !h.authorize(w, r, appointmentID) {
		return
	}
	status, err := h.gate.GetStatus(r.Context(), appointmentID)
	if err != nil {
		h.writeError(w, err, appointmentID)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Submit handles POST and PUT /patient/intake-form.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	appointmentID, err := uuid.Parse(strings.TrimSpace(req.AppointmentID))
	if err != nil {
		http.Error(w, "appointmentId must be a valid id", http.StatusBadRequest)
		return
	}
	if !h.authorize(w, r, appointmentID) {
		return
	}
	form, err := h.gate.Submit(r.Context(), appointmentID, req.FormData)
	if err != nil {
		h.writeError(w, err, appointmentID)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(form))
}

// authorize keeps patients to their own forms when the caller is known.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, appointmentID uuid.UUID) bool {
	id, ok := actor.FromContext(r.Context())
	if !ok {
		return true
	}
	appt, err := h.gate.Appointment(r.Context(), appointmentID)
	if err != nil {
		h.writeError(w, err, appointmentID)
		return false
	}
	if !id.CanAccess(appt.PatientID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, appointmentID uuid.UUID) {
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrNotGated):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "intake_not_required"})
	case errors.Is(err, ErrInvalidFormData):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_form_data"})
	default:
		h.logger.Error("intake request failed", "error", err, "appointment_id", appointmentID)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
