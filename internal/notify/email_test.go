package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/appointment-engine/pkg/logging"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "front-desk@example.com"}, nil)
	assert.Nil(t, sender)
}

func TestNewSendGridSender_FromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "front-desk@example.com"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, defaultFromName, sender.from.Name)

	sender = NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "front-desk@example.com", FromName: "Eastside Clinic"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "Eastside Clinic", sender.from.Name)
	assert.Equal(t, "front-desk@example.com", sender.from.Address)
}

func TestBuildMail(t *testing.T) {
	from := mail.NewEmail("Clinic", "front-desk@example.com")
	m, err := buildMail(from, EmailMessage{
		To:            "ada@example.com",
		ToName:        "Ada Byron",
		Subject:       "Your appointment is booked",
		Body:          "see you soon",
		Category:      "booking_confirmed",
		AppointmentID: "appt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"booking_confirmed"}, m.Categories)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "appt-1", m.Personalizations[0].CustomArgs["appointment_id"])
	require.Len(t, m.Content, 2)
	assert.Equal(t, "see you soon", m.Content[1].Value)

	_, err = buildMail(from, EmailMessage{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestSendGridSender_Send(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	var got *mail.SGMailV3
	sender := &SendGridSender{
		from:   mail.NewEmail("Clinic", "front-desk@example.com"),
		logger: logger,
		send: func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			got = m
			return 202, "", nil
		},
	}
	require.NoError(t, sender.Send(context.Background(), EmailMessage{To: "ada@example.com", Subject: "Hi", Body: "b"}))
	require.NotNil(t, got)
	assert.Equal(t, "Hi", got.Subject)

	sender.send = func(ctx context.Context, m *mail.SGMailV3) (int, string, error) { return 400, "bad", nil }
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ada@example.com"}))

	sender.send = func(ctx context.Context, m *mail.SGMailV3) (int, string, error) { return 0, "", errors.New("dial tcp") }
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "ada@example.com"}))
}

func TestSendGridSender_SendWithoutClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{To: "pat@example.com", Subject: "Test", Body: "body"})
	assert.Error(t, err)
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)
	assert.NoError(t, sender.Send(context.Background(), EmailMessage{To: "pat@example.com", Subject: "Test"}))
	assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{}), ErrNoRecipient)
}
