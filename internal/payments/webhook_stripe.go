package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/appointment-engine/pkg/logging"
)

// signatureTolerance is how old a signed Stripe timestamp may be.
const signatureTolerance = 5 * time.Minute

type processedTracker interface {
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

// StripeWebhookHandler applies Stripe Checkout outcomes to payment sessions.
type StripeWebhookHandler struct {
	webhookSecret string
	allowUnsigned bool
	events        gatewayEventApplier
	processed     processedTracker
	logger        *logging.Logger
	now           func() time.Time
}

func NewStripeWebhookHandler(webhookSecret string, events gatewayEventApplier, processed processedTracker, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		events:        events,
		processed:     processed,
		logger:        logger,
		now:           time.Now,
	}
}

// WithUnsignedEvents accepts events without a signature when no webhook
// secret is configured. Development only.
func (h *StripeWebhookHandler) WithUnsignedEvents(enabled bool) *StripeWebhookHandler {
	h.allowUnsigned = enabled
	return h
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if h.webhookSecret == "" {
		if !h.allowUnsigned {
			h.logger.Error("stripe webhook received but STRIPE_WEBHOOK_SECRET is not configured")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	} else if !verifyStripeSignature(h.webhookSecret, payload, r.Header.Get("Stripe-Signature"), h.now()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt stripeWebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	status, ok := sessionStatusForEvent(evt)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	reference := evt.Data.Object.ID
	if reference == "" {
		h.logger.Warn("stripe webhook missing checkout session id", "event_id", evt.ID, "type", evt.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.processed != nil {
		claimed, err := h.processed.Claim(r.Context(), "stripe", evt.ID)
		if err != nil {
			h.logger.Error("processed claim failed", "error", err, "event_id", evt.ID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if !claimed {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if _, err := h.events.ApplyGatewayEvent(r.Context(), reference, status); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// Not one of ours; acknowledge so Stripe stops retrying.
			h.logger.Warn("stripe webhook for unknown checkout session",
				"event_id", evt.ID, "reference", reference, "appointment_id", evt.Data.Object.Metadata["appointment_id"])
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("failed to apply stripe event", "error", err, "event_id", evt.ID)
		if h.processed != nil {
			if relErr := h.processed.Release(context.WithoutCancel(r.Context()), "stripe", evt.ID); relErr != nil {
				h.logger.Error("failed to release processed event", "error", relErr, "event_id", evt.ID)
			}
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// sessionStatusForEvent maps a Checkout event to the session status it
// implies. ok is false for events that do not settle a session.
func sessionStatusForEvent(evt stripeWebhookEvent) (SessionStatus, bool) {
	switch evt.Type {
	case "checkout.session.completed":
		// Delayed payment methods complete unpaid and settle asynchronously.
		if evt.Data.Object.PaymentStatus == "paid" || evt.Data.Object.PaymentStatus == "no_payment_required" {
			return StatusPaid, true
		}
		return "", false
	case "checkout.session.async_payment_succeeded":
		return StatusPaid, true
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		return StatusFailed, true
	default:
		return "", false
	}
}

type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeSessionObject `json:"object"`
	} `json:"data"`
}

type stripeSessionObject struct {
	ID                string            `json:"id"`
	PaymentIntent     string            `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	Status            string            `json:"status"`
}

// verifyStripeSignature checks a Stripe-Signature header of the form
// t=<timestamp>,v1=<signature>[,v1=...] against HMAC-SHA256("t.payload").
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}
