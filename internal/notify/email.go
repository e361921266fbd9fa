package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/appointment-engine/pkg/logging"
)

// ErrNoRecipient is returned for a message without a To address.
var ErrNoRecipient = errors.New("notify: email has no recipient")

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one patient-facing email. Category and AppointmentID are
// attached to the provider message so bounces can be traced to a booking.
type EmailMessage struct {
	To            string
	ToName        string
	Subject       string
	Body          string
	HTML          string
	Category      string
	AppointmentID string
}

const defaultFromName = "Clinic Appointments"

// SendGridConfig holds the sender identity and API key.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	send   func(ctx context.Context, m *mail.SGMailV3) (int, string, error)
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured; callers fall
// back to NewStubEmailSender.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	client := sendgrid.NewSendClient(cfg.APIKey)
	return &SendGridSender{
		send: func(ctx context.Context, m *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, m)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.send == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	m, err := buildMail(s.from, msg)
	if err != nil {
		return err
	}

	status, body, err := s.send(ctx, m)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "appointment_id", msg.AppointmentID)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if status >= 400 {
		s.logger.Error("sendgrid rejected email", "status", status, "body", body, "appointment_id", msg.AppointmentID)
		return fmt.Errorf("notify: sendgrid returned status %d", status)
	}
	s.logger.Info("appointment email sent", "category", msg.Category, "appointment_id", msg.AppointmentID, "status", status)
	return nil
}

// buildMail renders msg as a SendGrid v3 payload.
func buildMail(from *mail.Email, msg EmailMessage) (*mail.SGMailV3, error) {
	if msg.To == "" {
		return nil, ErrNoRecipient
	}
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	m := mail.NewSingleEmail(from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, html)
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	if msg.AppointmentID != "" && len(m.Personalizations) > 0 {
		m.Personalizations[0].SetCustomArg("appointment_id", msg.AppointmentID)
	}
	return m, nil
}

// StubEmailSender logs instead of sending; used when SENDGRID_API_KEY is unset.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	s.logger.Info("email delivery disabled; dropping message", "category", msg.Category, "appointment_id", msg.AppointmentID, "subject", msg.Subject)
	return nil
}
