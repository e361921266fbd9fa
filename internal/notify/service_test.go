package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/directory"
	"github.com/wolfman30/appointment-engine/internal/payments"
)

type mockEmailSender struct {
	sent    []EmailMessage
	callErr error
	ctxErr  error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	m.ctxErr = ctx.Err()
	if m.callErr != nil {
		return m.callErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func testDirectory() *directory.StaticDirectory {
	return directory.NewStaticDirectory().
		AddPatient(directory.Patient{ID: "pat-1", Name: "Ada Byron", Email: "ada@example.com"}).
		AddPatient(directory.Patient{ID: "pat-2", Name: "No Mail"})
}

func testAppointment(patientID string) *appointments.Appointment {
	fee := int64(15000)
	return &appointments.Appointment{
		ID:              uuid.New(),
		PatientID:       patientID,
		ProviderID:      "prov-1",
		StartTime:       time.Date(2025, 3, 4, 15, 30, 0, 0, time.UTC),
		DurationMinutes: 45,
		Type:            appointments.TypeQuitlineSmoking,
		Status:          appointments.StatusScheduled,
		PriceCents:      &fee,
	}
}

func TestService_BookingConfirmed(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, testDirectory(), time.UTC, nil)
	appt := testAppointment("pat-1")
	appt.MeetingLink = "https://meet.example.com/" + appt.ID.String()

	svc.BookingConfirmed(context.Background(), appt)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, "Ada Byron", msg.ToName)
	assert.Equal(t, "Your appointment is booked", msg.Subject)
	assert.Contains(t, msg.Body, "quitline smoking cessation")
	assert.Contains(t, msg.Body, "Tuesday, March 4 at 3:30 PM UTC")
	assert.Contains(t, msg.Body, "$150.00")
	assert.Contains(t, msg.Body, appt.MeetingLink)
	assert.Equal(t, "booking_confirmed", msg.Category)
	assert.Equal(t, appt.ID.String(), msg.AppointmentID)
}

func TestService_BookingConfirmedUsesClinicTimezone(t *testing.T) {
	sender := &mockEmailSender{}
	est := time.FixedZone("EST", -5*3600)
	svc := NewService(sender, testDirectory(), est, nil)

	svc.BookingConfirmed(context.Background(), testAppointment("pat-1"))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "10:30 AM EST")
}

func TestService_PaymentReceived(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, testDirectory(), nil, nil)
	appt := testAppointment("pat-1")

	svc.PaymentReceived(context.Background(), appt, &payments.Session{AmountCents: 15000, Status: payments.StatusPaid})
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Payment received", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].Body, "$150.00")
}

func TestService_StatusChanged(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, testDirectory(), nil, nil)
	appt := testAppointment("pat-1")

	appt.Status = appointments.StatusConfirmed
	svc.StatusChanged(context.Background(), appt)
	appt.Status = appointments.StatusInProgress
	svc.StatusChanged(context.Background(), appt)
	appt.Status = appointments.StatusCancelled
	svc.StatusChanged(context.Background(), appt)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "Your appointment is confirmed", sender.sent[0].Subject)
	assert.Equal(t, "Your appointment was cancelled", sender.sent[1].Subject)
}

func TestService_SkipsWithoutRecipient(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, testDirectory(), nil, nil)

	svc.BookingConfirmed(context.Background(), testAppointment("pat-2"))
	svc.BookingConfirmed(context.Background(), testAppointment("pat-unknown"))
	assert.Empty(t, sender.sent)
}

func TestService_SendFailureIsSwallowed(t *testing.T) {
	sender := &mockEmailSender{callErr: errors.New("sendgrid down")}
	svc := NewService(sender, testDirectory(), nil, nil)

	assert.NotPanics(t, func() {
		svc.BookingConfirmed(context.Background(), testAppointment("pat-1"))
	})
}

func TestService_NilSenderIsNoop(t *testing.T) {
	svc := NewService(nil, testDirectory(), nil, nil)
	assert.NotPanics(t, func() {
		svc.BookingConfirmed(context.Background(), testAppointment("pat-1"))
	})
}

type blockingEmailSender struct {
	deadline time.Time
	err      error
}

func (b *blockingEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	b.deadline, _ = ctx.Deadline()
	<-ctx.Done()
	b.err = ctx.Err()
	return b.err
}

func TestService_SendIsBounded(t *testing.T) {
	sender := &blockingEmailSender{}
	svc := NewService(sender, testDirectory(), nil, nil).WithSendTimeout(20 * time.Millisecond)

	start := time.Now()
	svc.BookingConfirmed(context.Background(), testAppointment("pat-1"))

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, sender.deadline.IsZero())
	assert.ErrorIs(t, sender.err, context.DeadlineExceeded)
}

func TestService_SendOutlivesCancelledRequest(t *testing.T) {
	sender := &mockEmailSender{}
	svc := NewService(sender, testDirectory(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.PaymentReceived(ctx, testAppointment("pat-1"), &payments.Session{AmountCents: 15000})
	assert.Len(t, sender.sent, 1)
	assert.NoError(t, sender.ctxErr)
}
