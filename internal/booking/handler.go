package booking

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/appointment-engine/internal/actor"
	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/payments"
	"github.com/wolfman30/appointment-engine/internal/slots"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

type bookingService interface {
	Validate(ctx context.Context, d Draft) (slots.Result, error)
	Book(ctx context.Context, d Draft) (*Outcome, error)
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, to appointments.Status, actor appointments.Actor) (*StatusChange, error)
}

// Handler exposes the appointment endpoints.
type Handler struct {
	svc     bookingService
	catalog *appointments.Catalog
	logger  *logging.Logger
}

func NewHandler(svc bookingService, catalog *appointments.Catalog, logger *logging.Logger) *Handler {
	if catalog == nil {
		catalog = appointments.DefaultCatalog()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, catalog: catalog, logger: logger}
}

type paymentView struct {
	Status     string `json:"status"`
	PaymentURL string `json:"paymentUrl,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	Error      string `json:"error,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

type createResponse struct {
	Appointment    *appointments.Appointment `json:"appointment"`
	Payment        *paymentView              `json:"payment,omitempty"`
	IntakeRequired bool                      `json:"intakeRequired"`
	Warnings       []slots.Warning           `json:"warnings,omitempty"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Appointment    *appointments.Appointment `json:"appointment"`
	PaymentPending bool                      `json:"paymentPending,omitempty"`
}

// Validate handles POST /appointments/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Validate(r.Context(), draft)
	if err != nil {
		h.logger.Error("validate appointment failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, redactFor(r.Context(), result))
}

// Create handles POST /appointments.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Book(r.Context(), draft)
	if err != nil {
		h.logger.Error("book appointment failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	switch out.Kind {
	case OutcomeRejected:
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": out.Errors})
	case OutcomeNeedsConfirmation:
		view := redactFor(r.Context(), slots.Result{Warnings: out.Warnings})
		writeJSON(w, http.StatusConflict, map[string]any{"warnings": view.Warnings})
	default:
		resp := createResponse{
			Appointment:    out.Appointment,
			IntakeRequired: out.IntakeRequired,
		}
		if len(out.Warnings) > 0 {
			resp.Warnings = redactFor(r.Context(), slots.Result{Warnings: out.Warnings}).Warnings
		}
		switch {
		case out.Payment != nil:
			resp.Payment = &paymentView{
				Status:     string(out.Payment.Status),
				PaymentURL: out.Payment.RedirectURL,
				SessionID:  out.Payment.SessionID.String(),
			}
		case out.Kind == OutcomeBookedPaymentDeferred:
			resp.Payment = &paymentView{
				Status:    "unpaid",
				Error:     paymentErrorCode(out.PaymentError),
				Retryable: true,
			}
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// Get handles GET /appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err, id)
		return
	}
	if ident, known := actor.FromContext(r.Context()); known && !ident.CanAccess(appt.PatientID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": appt})
}

// UpdateStatus handles PATCH /appointments/{id}/status. The caller must be
// identified; patients may only act on their own appointments.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ident, known := actor.FromContext(r.Context())
	if !known {
		http.Error(w, "actor role required", http.StatusForbidden)
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	to, err := appointments.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	if ident.Role == appointments.ActorPatient {
		appt, err := h.svc.Get(r.Context(), id)
		if err != nil {
			h.writeError(w, err, id)
			return
		}
		if !ident.CanAccess(appt.PatientID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	change, err := h.svc.ChangeStatus(r.Context(), id, to, ident.Role)
	if err != nil {
		h.writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Appointment: change.Appointment, PaymentPending: change.PaymentPending})
}

func (h *Handler) decodeDraft(w http.ResponseWriter, r *http.Request) (Draft, bool) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return Draft{}, false
	}
	if ident, known := actor.FromContext(r.Context()); known && !ident.CanAccess(req.PatientID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return Draft{}, false
	}
	draft, err := NewDraft(h.catalog, req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errors": []map[string]string{{"type": "invalid_request", "message": err.Error()}},
		})
		return Draft{}, false
	}
	return draft, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, id uuid.UUID) {
	var transition *appointments.TransitionError
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "invalid_transition",
			"from":  string(transition.From),
			"to":    string(transition.To),
		})
	case errors.Is(err, appointments.ErrActorNotPermitted):
		http.Error(w, "actor not permitted", http.StatusForbidden)
	default:
		h.logger.Error("appointment request failed", "error", err, "appointment_id", id)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

// redactFor hides other patients' details unless the caller is a provider.
func redactFor(ctx context.Context, result slots.Result) slots.Result {
	if ident, known := actor.FromContext(ctx); known && ident.Role == appointments.ActorProvider {
		return result
	}
	return result.RedactForPatient()
}

func paymentErrorCode(err error) string {
	var gw *payments.GatewayError
	switch {
	case errors.As(err, &gw):
		return "payment_gateway_error"
	case errors.Is(err, payments.ErrSessionBusy):
		return "payment_in_progress"
	default:
		return "payment_unavailable"
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
