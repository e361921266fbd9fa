package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/observability/metrics"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

var tracer = otel.Tracer("appointments.internal.payments")

const defaultGatewayTimeout = 10 * time.Second

// AppointmentReader loads appointments for payment.
type AppointmentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

// PaymentNotifier is told when a session becomes paid. Implementations log
// their own failures.
type PaymentNotifier interface {
	PaymentReceived(ctx context.Context, appt *appointments.Appointment, session *Session)
}

// Coordinator creates and tracks gateway payment sessions for appointments.
type Coordinator struct {
	store    Store
	appts    AppointmentReader
	gateway  Gateway
	locker   Locker
	notifier PaymentNotifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	timeout  time.Duration
	currency string
}

func NewCoordinator(store Store, appts AppointmentReader, gateway Gateway, locker Locker, logger *logging.Logger) *Coordinator {
	if store == nil || appts == nil || gateway == nil {
		panic("payments: store, appointment reader and gateway required")
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		store:    store,
		appts:    appts,
		gateway:  gateway,
		locker:   locker,
		logger:   logger,
		timeout:  defaultGatewayTimeout,
		currency: "usd",
	}
}

// WithTimeout bounds every gateway call.
func (c *Coordinator) WithTimeout(d time.Duration) *Coordinator {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func (c *Coordinator) WithNotifier(n PaymentNotifier) *Coordinator {
	c.notifier = n
	return c
}

func (c *Coordinator) WithMetrics(m *metrics.BookingMetrics) *Coordinator {
	c.metrics = m
	return c
}

func (c *Coordinator) WithCurrency(currency string) *Coordinator {
	if currency = strings.ToLower(strings.TrimSpace(currency)); currency != "" {
		c.currency = currency
	}
	return c
}

// CreateSession returns a checkout link for the appointment. A pending
// session is reused; a failed or missing one is replaced; a paid one is final.
func (c *Coordinator) CreateSession(ctx context.Context, appointmentID uuid.UUID) (*SessionLink, error) {
	ctx, span := tracer.Start(ctx, "payments.create_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointments.appointment_id", appointmentID.String()),
		attribute.String("appointments.gateway", c.gateway.Name()),
	)

	appt, err := c.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.Payable() {
		return nil, ErrNothingToPay
	}

	release, err := c.locker.Acquire(ctx, appointmentID.String())
	if err != nil {
		c.metrics.ObservePaymentSession(c.gateway.Name(), "busy")
		return nil, err
	}
	defer release()

	latest, err := c.store.Latest(ctx, appointmentID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
	case err != nil:
		return nil, err
	case latest.Status == StatusPaid:
		c.metrics.ObservePaymentSession(c.gateway.Name(), "already_paid")
		return nil, ErrAlreadyPaid
	case latest.Status == StatusPending && latest.RedirectURL != "":
		c.metrics.ObservePaymentSession(c.gateway.Name(), "reused")
		span.SetAttributes(attribute.Bool("appointments.session_reused", true))
		return linkFor(latest, true), nil
	case latest.Status == StatusPending:
		// A previous attempt died between insert and gateway response.
		if err := c.store.MarkFailed(ctx, latest.ID); err != nil {
			return nil, err
		}
	}

	session := &Session{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		AmountCents:   *appt.PriceCents,
		Currency:      c.currency,
		Status:        StatusPending,
		Gateway:       c.gateway.Name(),
	}
	if err := c.store.Insert(ctx, session); err != nil {
		if errors.Is(err, ErrPendingExists) {
			return c.reusePending(ctx, appointmentID)
		}
		return nil, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, c.timeout)
	started := time.Now()
	resp, gwErr := c.gateway.CreateCheckout(gwCtx, CheckoutRequest{
		SessionID:     session.ID,
		AppointmentID: appointmentID,
		PatientID:     appt.PatientID,
		AmountCents:   session.AmountCents,
		Currency:      session.Currency,
		Description:   describe(appt.Type),
		StartTime:     appt.StartTime,
	})
	cancel()

	// The session row must settle even if the caller went away.
	settleCtx := context.WithoutCancel(ctx)
	if gwErr != nil {
		c.metrics.ObserveGatewayLatency(c.gateway.Name(), "error", time.Since(started).Seconds())
		c.metrics.ObservePaymentSession(c.gateway.Name(), "gateway_error")
		if err := c.store.MarkFailed(settleCtx, session.ID); err != nil {
			c.logger.Error("payments: failed to mark session failed", "error", err, "session_id", session.ID)
		}
		c.logger.Warn("payment gateway checkout failed",
			"error", gwErr, "appointment_id", appointmentID, "gateway", c.gateway.Name())
		span.RecordError(gwErr)
		return nil, &GatewayError{Gateway: c.gateway.Name(), Retryable: true, Err: gwErr}
	}
	c.metrics.ObserveGatewayLatency(c.gateway.Name(), "ok", time.Since(started).Seconds())

	attached, err := c.store.Attach(settleCtx, session.ID, resp.Reference, resp.URL)
	if err != nil {
		return nil, fmt.Errorf("payments: attach checkout: %w", err)
	}
	c.metrics.ObservePaymentSession(c.gateway.Name(), "created")
	c.logger.Info("payment session created",
		"appointment_id", appointmentID, "session_id", attached.ID, "amount_cents", attached.AmountCents)
	return linkFor(attached, false), nil
}

func (c *Coordinator) reusePending(ctx context.Context, appointmentID uuid.UUID) (*SessionLink, error) {
	latest, err := c.store.Latest(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if latest.Status == StatusPending && latest.RedirectURL != "" {
		c.metrics.ObservePaymentSession(c.gateway.Name(), "reused")
		return linkFor(latest, true), nil
	}
	return nil, ErrSessionBusy
}

// GetStatus reports the status of the latest session. An appointment with
// no session yet is pending.
func (c *Coordinator) GetStatus(ctx context.Context, appointmentID uuid.UUID) (SessionStatus, error) {
	if _, err := c.appts.Get(ctx, appointmentID); err != nil {
		return "", err
	}
	latest, err := c.store.Latest(ctx, appointmentID)
	if errors.Is(err, ErrSessionNotFound) {
		return StatusPending, nil
	}
	if err != nil {
		return "", err
	}
	return latest.Status, nil
}

// ApplyGatewayEvent records a gateway outcome for the session with the given
// reference. Paid sessions never change.
func (c *Coordinator) ApplyGatewayEvent(ctx context.Context, reference string, status SessionStatus) (*Session, error) {
	ctx, span := tracer.Start(ctx, "payments.apply_gateway_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointments.gateway_reference", reference),
		attribute.String("appointments.payment_status", string(status)),
	)

	if status != StatusPaid && status != StatusFailed {
		return nil, fmt.Errorf("payments: unsupported gateway status %q", status)
	}
	if strings.TrimSpace(reference) == "" {
		return nil, ErrSessionNotFound
	}

	session, applied, err := c.store.UpdateStatusByReference(ctx, reference, status)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveGatewayEvent(string(status), applied)
	if !applied {
		c.logger.Info("gateway event ignored", "reference", reference, "status", status, "current", session.Status)
		return session, nil
	}

	c.logger.Info("payment session updated",
		"appointment_id", session.AppointmentID, "session_id", session.ID, "status", session.Status)
	if session.Status == StatusPaid && c.notifier != nil {
		appt, err := c.appts.Get(ctx, session.AppointmentID)
		if err != nil {
			c.logger.Warn("payments: load appointment for receipt failed", "error", err, "appointment_id", session.AppointmentID)
		} else {
			c.notifier.PaymentReceived(ctx, appt, session)
		}
	}
	return session, nil
}

func describe(t appointments.ServiceType) string {
	words := strings.Fields(strings.ReplaceAll(string(t), "_", " "))
	if len(words) == 0 {
		return "Appointment"
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}
