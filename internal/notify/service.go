package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/directory"
	"github.com/wolfman30/appointment-engine/internal/payments"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

// PatientLookup resolves the patient an email is addressed to.
type PatientLookup interface {
	Patient(ctx context.Context, id string) (*directory.Patient, error)
}

// DefaultSendTimeout bounds a single email delivery.
const DefaultSendTimeout = 5 * time.Second

// Service emails patients about their appointments. Delivery failures are
// logged and never returned; a booking must not fail because mail did.
type Service struct {
	email       EmailSender
	patients    PatientLookup
	location    *time.Location
	sendTimeout time.Duration
	logger      *logging.Logger
}

func NewService(email EmailSender, patients PatientLookup, location *time.Location, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{
		email:       email,
		patients:    patients,
		location:    location,
		sendTimeout: DefaultSendTimeout,
		logger:      logger,
	}
}

// WithSendTimeout overrides DefaultSendTimeout. Non-positive values are ignored.
func (s *Service) WithSendTimeout(d time.Duration) *Service {
	if d > 0 {
		s.sendTimeout = d
	}
	return s
}

// BookingConfirmed tells the patient their appointment is scheduled.
func (s *Service) BookingConfirmed(ctx context.Context, appt *appointments.Appointment) {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s appointment is scheduled for %s (%d minutes).\n",
		humanize(appt.Type), s.formatTime(appt.StartTime), appt.DurationMinutes)
	if appt.MeetingLink != "" {
		fmt.Fprintf(&b, "Join online: %s\n", appt.MeetingLink)
	}
	if appt.Payable() {
		fmt.Fprintf(&b, "A payment of %s is due before your visit.\n", formatCents(*appt.PriceCents))
	}
	fmt.Fprintf(&b, "Reference: %s\n", appt.ID)
	s.send(ctx, appt, "booking_confirmed", "Your appointment is booked", b.String())
}

// PaymentReceived sends a receipt once a payment session is paid.
func (s *Service) PaymentReceived(ctx context.Context, appt *appointments.Appointment, session *payments.Session) {
	body := fmt.Sprintf("We received your payment of %s for your %s appointment on %s.\nReference: %s\n",
		formatCents(session.AmountCents), humanize(appt.Type), s.formatTime(appt.StartTime), appt.ID)
	s.send(ctx, appt, "payment_received", "Payment received", body)
}

// StatusChanged tells the patient about a provider-side status change.
func (s *Service) StatusChanged(ctx context.Context, appt *appointments.Appointment) {
	var subject string
	switch appt.Status {
	case appointments.StatusConfirmed:
		subject = "Your appointment is confirmed"
	case appointments.StatusCancelled:
		subject = "Your appointment was cancelled"
	default:
		return
	}
	body := fmt.Sprintf("Your %s appointment on %s is now %s.\nReference: %s\n",
		humanize(appt.Type), s.formatTime(appt.StartTime), appt.Status, appt.ID)
	s.send(ctx, appt, "status_changed", subject, body)
}

func (s *Service) send(ctx context.Context, appt *appointments.Appointment, category, subject, body string) {
	if s.email == nil || s.patients == nil {
		s.logger.Debug("notify: email not configured, skipping", "appointment_id", appt.ID)
		return
	}
	patient, err := s.patients.Patient(ctx, appt.PatientID)
	if err != nil {
		s.logger.Warn("notify: patient lookup failed", "error", err, "patient_id", appt.PatientID)
		return
	}
	if strings.TrimSpace(patient.Email) == "" {
		s.logger.Debug("notify: patient has no email", "patient_id", appt.PatientID)
		return
	}
	msg := EmailMessage{
		To:            patient.Email,
		ToName:        patient.Name,
		Subject:       subject,
		Body:          body,
		Category:      category,
		AppointmentID: appt.ID.String(),
	}
	// a dropped client connection does not abort delivery, the deadline does
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sendTimeout)
	defer cancel()
	if err := s.email.Send(sendCtx, msg); err != nil {
		s.logger.Error("notify: email failed", "error", err, "appointment_id", appt.ID, "subject", subject)
	}
}

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.location).Format("Monday, January 2 at 3:04 PM MST")
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}

func humanize(t appointments.ServiceType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}
