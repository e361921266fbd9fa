package payments

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/appointment-engine/pkg/logging"
)

type sessionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
}

type gatewayEventApplier interface {
	ApplyGatewayEvent(ctx context.Context, reference string, status SessionStatus) (*Session, error)
}

// FakeCheckoutHandler serves the demo checkout pages behind FakeGateway.
// Only mount this handler when ALLOW_FAKE_PAYMENTS=true.
type FakeCheckoutHandler struct {
	sessions sessionReader
	events   gatewayEventApplier
	logger   *logging.Logger
}

func NewFakeCheckoutHandler(sessions sessionReader, events gatewayEventApplier, logger *logging.Logger) *FakeCheckoutHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckoutHandler{sessions: sessions, events: events, logger: logger}
}

// Routes is mounted under /payments/fake.
func (h *FakeCheckoutHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{sessionID}", h.HandleCheckout)
	r.Post("/{sessionID}/complete", h.HandleComplete)
	r.Post("/{sessionID}/fail", h.HandleFail)
	r.Get("/{sessionID}/result", h.HandleResult)
	return r
}

const fakePageStyle = `body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{display:inline-block;background:#111827;color:#fff;padding:12px 16px;border-radius:10px;text-decoration:none;border:0;cursor:pointer;}
      .btn.secondary{background:#9ca3af;}
      .muted{color:#6b7280;font-size:14px;}
      code{background:#f3f4f6;padding:2px 6px;border-radius:6px;}`

func (h *FakeCheckoutHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUIDParam(w, r, "sessionID")
	if !ok {
		return
	}
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "payment session not found", http.StatusNotFound)
		return
	}
	if sess.Status != StatusPending {
		http.Redirect(w, r, fmt.Sprintf("/payments/fake/%s/result", sessionID), http.StatusSeeOther)
		return
	}

	amount := float64(sess.AmountCents) / 100.0
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Demo Appointment Checkout</title>
    <style>
      %s
    </style>
  </head>
  <body>
    <h1>Demo Appointment Checkout</h1>
    <div class="card">
      <p><strong>Amount:</strong> $%.2f %s</p>
      <p class="muted">This is a demo-only payment page (no real payment is processed).</p>
      <form method="POST" action="/payments/fake/%s/complete" style="display:inline">
        <button class="btn" type="submit">Pay</button>
      </form>
      <form method="POST" action="/payments/fake/%s/fail" style="display:inline">
        <button class="btn secondary" type="submit">Decline</button>
      </form>
      <p class="muted">Appointment: <code>%s</code></p>
    </div>
  </body>
</html>`, fakePageStyle, amount, html.EscapeString(strings.ToUpper(sess.Currency)), sessionID, sessionID, sess.AppointmentID)
}

func (h *FakeCheckoutHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, StatusPaid)
}

func (h *FakeCheckoutHandler) HandleFail(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, StatusFailed)
}

func (h *FakeCheckoutHandler) settle(w http.ResponseWriter, r *http.Request, status SessionStatus) {
	sessionID, ok := parseUUIDParam(w, r, "sessionID")
	if !ok {
		return
	}
	if _, err := h.events.ApplyGatewayEvent(r.Context(), fakeReference(sessionID), status); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "payment session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("fake payment settle failed", "error", err, "session_id", sessionID, "status", status)
		http.Error(w, "failed to update payment", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/payments/fake/%s/result", sessionID), http.StatusSeeOther)
}

func (h *FakeCheckoutHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseUUIDParam(w, r, "sessionID")
	if !ok {
		return
	}
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "payment session not found", http.StatusNotFound)
		return
	}
	title := "Payment Completed"
	message := "Thanks, your demo payment is marked as paid."
	switch sess.Status {
	case StatusFailed:
		title = "Payment Declined"
		message = "The demo payment was declined. You can request a new payment link."
	case StatusPending:
		title = "Payment Pending"
		message = "This payment has not been completed yet."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>%s</title>
    <style>
      %s
    </style>
  </head>
  <body>
    <h1>%s</h1>
    <div class="card">
      <p>%s</p>
      <p class="muted">Session: <code>%s</code></p>
    </div>
  </body>
</html>`, title, fakePageStyle, title, message, sessionID)
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return parsed, true
}
