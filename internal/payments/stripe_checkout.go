package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-engine/pkg/logging"
)

var stripeTracer = otel.Tracer("appointments.internal.payments.stripe")

// StripeGateway opens Stripe Checkout Sessions for appointment fees.
type StripeGateway struct {
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	apiVersion string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewStripeGateway creates a Stripe gateway. successURL and cancelURL may
// contain {APPOINTMENT_ID}, which is substituted per checkout.
func NewStripeGateway(secretKey, successURL, cancelURL string, logger *logging.Logger) *StripeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeGateway{
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
		baseURL:    "https://api.stripe.com",
		apiVersion: "2024-12-18.acacia",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeGateway) WithBaseURL(baseURL string) *StripeGateway {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithDryRun returns fake checkout URLs without calling Stripe.
func (s *StripeGateway) WithDryRun(enabled bool) *StripeGateway {
	s.dryRun = enabled
	return s
}

func (s *StripeGateway) Name() string { return "stripe" }

// CreateCheckout implements Gateway.
func (s *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointments.appointment_id", req.AppointmentID.String()),
		attribute.String("appointments.session_id", req.SessionID.String()),
		attribute.Int64("appointments.amount_cents", req.AmountCents),
	)

	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("payments: stripe checkout requires a positive amount")
	}

	if s.dryRun {
		fakeID := "cs_dryrun_" + uuid.New().String()[:8]
		s.logger.Info("stripe dry run: skipping checkout session creation",
			"appointment_id", req.AppointmentID, "amount_cents", req.AmountCents)
		return &CheckoutResponse{
			URL:       fmt.Sprintf("https://checkout.stripe.com/dry-run/%s", fakeID),
			Reference: fakeID,
		}, nil
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}
	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = "Appointment"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.AppointmentID.String())
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", req.AmountCents))
	form.Set("line_items[0][price_data][product_data][name]", description)
	form.Set("line_items[0][quantity]", "1")

	if u := expandAppointmentURL(s.successURL, req.AppointmentID); u != "" {
		form.Set("success_url", u)
	}
	if u := expandAppointmentURL(s.cancelURL, req.AppointmentID); u != "" {
		form.Set("cancel_url", u)
	}

	// Webhook correlation
	form.Set("metadata[appointment_id]", req.AppointmentID.String())
	form.Set("metadata[session_id]", req.SessionID.String())
	if req.PatientID != "" {
		form.Set("metadata[patient_id]", req.PatientID)
	}
	if !req.StartTime.IsZero() {
		form.Set("metadata[start_time]", req.StartTime.UTC().Format(time.RFC3339))
	}
	form.Set("payment_intent_data[metadata][appointment_id]", req.AppointmentID.String())
	form.Set("payment_intent_data[metadata][session_id]", req.SessionID.String())

	apiURL := s.baseURL + "/v1/checkout/sessions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("payments: stripe request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Stripe-Version", s.apiVersion)
	httpReq.Header.Set("Idempotency-Key", req.SessionID.String())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payments: stripe http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("payments: stripe api status %d: %s", resp.StatusCode, readStripeError(resp.Body))
	}

	var parsed stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: stripe decode: %w", err)
	}
	if parsed.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}

	return &CheckoutResponse{
		URL:       parsed.URL,
		Reference: parsed.ID,
	}, nil
}

func expandAppointmentURL(raw string, appointmentID uuid.UUID) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), "{APPOINTMENT_ID}", appointmentID.String())
}

// stripeCheckoutSession is the subset of Stripe's Checkout Session we need.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func readStripeError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "unknown error"
	}
	var parsed stripeErrorResponse
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(data))
}
