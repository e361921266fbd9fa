package payments

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

type sessionService interface {
	CreateSession(ctx context.Context, appointmentID uuid.UUID) (*SessionLink, error)
	GetStatus(ctx context.Context, appointmentID uuid.UUID) (SessionStatus, error)
}

// Handler serves the patient-facing payment endpoints.
type Handler struct {
	payments sessionService
	appts    AppointmentReader
	logger   *logging.Logger
}

func NewHandler(payments sessionService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{payments: payments, logger: logger}
}

// WithAppointments enables patient scoping: a known actor must be allowed
// to see the appointment before its payment is created or reported.
func (h *Handler) WithAppointments(appts AppointmentReader) *Handler {
	h.appts = appts
	return h
}

// authorize returns the HTTP status to fail with, or 0 when the caller may
// act on the appointment.
func (h *Handler) authorize(r *http.Request, appointmentID uuid.UUID) int {
	ident, known := actor.FromContext(r.Context())
	if !known || h.appts == nil {
		return 0
	}
	appt, err := h.appts.Get(r.Context(), appointmentID)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			return http.StatusNotFound
		}
		h.logger.Error("payment authorization lookup failed", "error", err, "appointment_id", appointmentID)
		return http.StatusInternalServerError
	}
	if !ident.CanAccess(appt.PatientID) {
		return http.StatusForbidden
	}
	return 0
}

type createPaymentRequest struct {
	AppointmentID string `json:"appointmentId"`
}

type createPaymentResponse struct {
	Success    bool   `json:"success"`
	PaymentURL string `json:"paymentUrl,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	Reused     bool   `json:"reused,omitempty"`
	Error      string `json:"error,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

// CreatePayment handles POST /payment/create.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, createPaymentResponse{Error: "invalid payload"})
		return
	}
	appointmentID, err := uuid.Parse(strings.TrimSpace(req.AppointmentID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, createPaymentResponse{Error: "appointmentId must be a valid id"})
		return
	}

	switch h.authorize(r, appointmentID) {
	case 0:
	case http.StatusNotFound:
		writeJSON(w, http.StatusNotFound, createPaymentResponse{Error: "appointment_not_found"})
		return
	case http.StatusForbidden:
		writeJSON(w, http.StatusForbidden, createPaymentResponse{Error: "forbidden"})
		return
	default:
		writeJSON(w, http.StatusInternalServerError, createPaymentResponse{Error: "internal_error", Retryable: true})
		return
	}

	link, err := h.payments.CreateSession(r.Context(), appointmentID)
	if err != nil {
		status, body := h.createError(err, appointmentID)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, createPaymentResponse{
		Success:    true,
		PaymentURL: link.RedirectURL,
		SessionID:  link.SessionID.String(),
		Reused:     link.Reused,
	})
}

func (h *Handler) createError(err error, appointmentID uuid.UUID) (int, createPaymentResponse) {
	var gwErr *GatewayError
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		return http.StatusNotFound, createPaymentResponse{Error: "appointment_not_found"}
	case errors.Is(err, ErrNothingToPay):
		return http.StatusBadRequest, createPaymentResponse{Error: "nothing_to_pay"}
	case errors.Is(err, ErrAlreadyPaid):
		return http.StatusConflict, createPaymentResponse{Error: "already_paid"}
	case errors.Is(err, ErrSessionBusy):
		return http.StatusConflict, createPaymentResponse{Error: "payment_in_progress", Retryable: true}
	case errors.As(err, &gwErr):
		return http.StatusBadGateway, createPaymentResponse{Error: "payment_gateway_error", Retryable: gwErr.Retryable}
	default:
		h.logger.Error("create payment session failed", "error", err, "appointment_id", appointmentID)
		return http.StatusInternalServerError, createPaymentResponse{Error: "internal_error", Retryable: true}
	}
}

// PaymentStatus handles GET /appointments/{id}/payment-status.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}
	switch h.authorize(r, appointmentID) {
	case 0:
	case http.StatusNotFound:
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	case http.StatusForbidden:
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	status, err := h.payments.GetStatus(r.Context(), appointmentID)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("payment status lookup failed", "error", err, "appointment_id", appointmentID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
