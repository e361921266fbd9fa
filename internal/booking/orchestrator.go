// Package booking turns a validated draft into a persisted appointment and
// drives the follow-up steps: payment session, intake flag and notifications.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/observability/metrics"
	"github.com/wolfman30/appointment-engine/internal/payments"
	"github.com/wolfman30/appointment-engine/internal/slots"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

var tracer = otel.Tracer("appointments.internal.booking")

// OutcomeKind says how far a booking attempt got.
type OutcomeKind string

const (
	OutcomeRejected          OutcomeKind = "rejected"
	OutcomeNeedsConfirmation OutcomeKind = "needs_confirmation"
	OutcomeBooked            OutcomeKind = "booked"
	// OutcomeBookedPaymentDeferred: the appointment exists but the payment
	// session could not be opened. The patient can retry payment later.
	OutcomeBookedPaymentDeferred OutcomeKind = "booked_payment_deferred"
)

// Outcome is the result of Book.
type Outcome struct {
	Kind           OutcomeKind
	Appointment    *appointments.Appointment
	Errors         []slots.Violation
	Warnings       []slots.Warning
	IntakeRequired bool
	Payment        *payments.SessionLink
	PaymentError   error
}

// StatusChange is the result of ChangeStatus.
type StatusChange struct {
	Appointment *appointments.Appointment
	// PaymentPending is set when a cancelled appointment still has an unpaid
	// balance; any open checkout session is left as is.
	PaymentPending bool
}

// PaymentService opens and reads payment sessions.
type PaymentService interface {
	CreateSession(ctx context.Context, appointmentID uuid.UUID) (*payments.SessionLink, error)
	GetStatus(ctx context.Context, appointmentID uuid.UUID) (payments.SessionStatus, error)
}

// Notifier is told about bookings and status changes. Implementations must
// not block on delivery failures.
type Notifier interface {
	BookingConfirmed(ctx context.Context, appt *appointments.Appointment)
	StatusChanged(ctx context.Context, appt *appointments.Appointment)
}

// rejection aborts CreateWithinSlot when the slot no longer passes the hard checks.
type rejection struct {
	violations []slots.Violation
}

func (r *rejection) Error() string {
	names := make([]string, 0, len(r.violations))
	for _, v := range r.violations {
		names = append(names, string(v.Code))
	}
	return "booking: rejected at persistence: " + strings.Join(names, ",")
}

// Orchestrator books appointments and applies status transitions.
type Orchestrator struct {
	store       appointments.Store
	validator   *slots.Validator
	catalog     *appointments.Catalog
	payments    PaymentService
	notifier    Notifier
	metrics     *metrics.BookingMetrics
	meetingBase string
	logger      *logging.Logger
}

func NewOrchestrator(store appointments.Store, validator *slots.Validator, catalog *appointments.Catalog, logger *logging.Logger) *Orchestrator {
	if store == nil || validator == nil {
		panic("booking: store and validator required")
	}
	if catalog == nil {
		catalog = appointments.DefaultCatalog()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		store:       store,
		validator:   validator,
		catalog:     catalog,
		meetingBase: "https://meet.jit.si",
		logger:      logger,
	}
}

// WithPayments enables payment sessions for priced appointments.
func (o *Orchestrator) WithPayments(p PaymentService) *Orchestrator {
	o.payments = p
	return o
}

func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

func (o *Orchestrator) WithMetrics(m *metrics.BookingMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithMeetingBaseURL sets the host used for virtual visit links.
func (o *Orchestrator) WithMeetingBaseURL(base string) *Orchestrator {
	if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
		o.meetingBase = base
	}
	return o
}

// Validate runs the slot validator for a draft. It has no side effects.
func (o *Orchestrator) Validate(ctx context.Context, d Draft) (slots.Result, error) {
	ctx, span := tracer.Start(ctx, "booking.validate")
	defer span.End()
	return o.validator.Validate(ctx, d.Candidate())
}

// Book validates the draft and, when it passes, persists it as a scheduled
// appointment and opens a payment session if the service has a price.
func (o *Orchestrator) Book(ctx context.Context, d Draft) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()
	c := d.Candidate()
	span.SetAttributes(
		attribute.String("appointments.provider_id", c.ProviderID),
		attribute.String("appointments.service_type", string(c.Type)),
	)

	result, err := o.validator.Validate(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, fmt.Errorf("booking: validate: %w", err)
	}
	if !result.Valid {
		return o.finish(c, &Outcome{Kind: OutcomeRejected, Errors: result.Errors}), nil
	}
	if len(result.Warnings) > 0 && !d.Acknowledged() {
		return o.finish(c, &Outcome{Kind: OutcomeNeedsConfirmation, Warnings: result.Warnings}), nil
	}

	appt := &appointments.Appointment{
		ID:              uuid.New(),
		PatientID:       c.PatientID,
		ProviderID:      c.ProviderID,
		StartTime:       c.StartTime,
		DurationMinutes: c.DurationMinutes,
		Type:            c.Type,
		Status:          appointments.StatusScheduled,
		PriceCents:      o.catalog.Price(c.Type),
		Notes:           d.Notes(),
	}
	if tariff, ok := o.catalog.Lookup(c.Type); ok && tariff.Virtual {
		appt.MeetingLink = o.meetingBase + "/visit-" + appt.ID.String()
	}

	guard := func(ctx context.Context, overlapping []*appointments.Appointment) error {
		violations, err := o.validator.CheckHard(ctx, c)
		if err != nil {
			return err
		}
		if taken := slots.OverlapViolation(c, overlapping); taken != nil {
			violations = append(violations, *taken)
		}
		if len(violations) > 0 {
			return &rejection{violations: violations}
		}
		return nil
	}
	if err := o.store.CreateWithinSlot(ctx, appt, guard); err != nil {
		var rejected *rejection
		if errors.As(err, &rejected) {
			o.logger.Info("booking rejected at persistence", "provider_id", c.ProviderID, "reason", rejected.Error())
			return o.finish(c, &Outcome{Kind: OutcomeRejected, Errors: rejected.violations}), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("booking: create: %w", err)
	}
	span.SetAttributes(attribute.String("appointments.appointment_id", appt.ID.String()))
	o.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", appt.PatientID,
		"provider_id", appt.ProviderID,
		"service_type", appt.Type,
	)

	out := &Outcome{
		Kind:           OutcomeBooked,
		Appointment:    appt,
		Warnings:       result.Warnings,
		IntakeRequired: o.catalog.IsGated(appt.Type),
	}
	if appt.Payable() && o.payments != nil {
		link, err := o.payments.CreateSession(ctx, appt.ID)
		if err != nil {
			o.logger.Warn("payment session deferred", "appointment_id", appt.ID, "error", err)
			out.Kind = OutcomeBookedPaymentDeferred
			out.PaymentError = err
		} else {
			out.Payment = link
		}
	}
	if o.notifier != nil {
		o.notifier.BookingConfirmed(ctx, appt)
	}
	return o.finish(c, out), nil
}

func (o *Orchestrator) finish(c slots.Candidate, out *Outcome) *Outcome {
	o.metrics.ObserveBooking(string(out.Kind), string(c.Type))
	return out
}

// Get loads an appointment.
func (o *Orchestrator) Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	return o.store.Get(ctx, id)
}

// ChangeStatus moves an appointment to `to` on behalf of actor. The write is
// a compare-and-set on the status read here; a writer that loses the race
// gets an invalid_transition naming the status that won.
func (o *Orchestrator) ChangeStatus(ctx context.Context, id uuid.UUID, to appointments.Status, actor appointments.Actor) (*StatusChange, error) {
	ctx, span := tracer.Start(ctx, "booking.change_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("appointments.appointment_id", id.String()),
		attribute.String("appointments.to", string(to)),
		attribute.String("appointments.actor", string(actor)),
	)

	current, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := appointments.CheckTransition(current.Status, to, actor); err != nil {
		o.metrics.ObserveTransition(string(current.Status), string(to), "rejected")
		return nil, err
	}

	updated, err := o.store.UpdateStatus(ctx, id, current.Status, to)
	if errors.Is(err, appointments.ErrStatusConflict) {
		from := current.Status
		if latest, getErr := o.store.Get(ctx, id); getErr == nil {
			from = latest.Status
		}
		o.metrics.ObserveTransition(string(from), string(to), "conflict")
		return nil, &appointments.TransitionError{From: from, To: to}
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: update status: %w", err)
	}
	o.metrics.ObserveTransition(string(current.Status), string(to), "applied")
	o.logger.Info("appointment status changed",
		"appointment_id", id,
		"from", current.Status,
		"to", to,
		"actor", actor,
	)

	change := &StatusChange{Appointment: updated}
	if to == appointments.StatusCancelled && updated.Payable() && o.payments != nil {
		status, err := o.payments.GetStatus(ctx, id)
		if err != nil {
			o.logger.Warn("payment status lookup failed after cancel", "appointment_id", id, "error", err)
		} else {
			change.PaymentPending = status == payments.StatusPending
		}
	}
	if o.notifier != nil {
		o.notifier.StatusChanged(ctx, updated)
	}
	return change, nil
}
