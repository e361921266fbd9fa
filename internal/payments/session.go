package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the state of one payment attempt.
type SessionStatus string

const (
	StatusPending SessionStatus = "pending"
	StatusPaid    SessionStatus = "paid"
	StatusFailed  SessionStatus = "failed"
)

var (
	// ErrNothingToPay is returned for appointments without a positive price.
	ErrNothingToPay = errors.New("appointment has no price to pay")

	// ErrAlreadyPaid is returned when the latest session is paid; paid sessions are never superseded.
	ErrAlreadyPaid = errors.New("appointment already paid")

	// ErrSessionNotFound is returned when no session matches.
	ErrSessionNotFound = errors.New("payment session not found")

	// ErrPendingExists is returned by a store insert when a pending session already exists.
	ErrPendingExists = errors.New("pending payment session already exists")

	// ErrSessionBusy is returned when another request holds the appointment's payment lock for too long.
	ErrSessionBusy = errors.New("payment session creation in progress")
)

// Session is one payment attempt for an appointment. Attempts are retained;
// the most recent one is authoritative.
type Session struct {
	ID               uuid.UUID     `json:"id"`
	AppointmentID    uuid.UUID     `json:"appointmentId"`
	AmountCents      int64         `json:"amountCents"`
	Currency         string        `json:"currency"`
	Status           SessionStatus `json:"status"`
	Gateway          string        `json:"gateway"`
	GatewayReference string        `json:"gatewayReference,omitempty"`
	RedirectURL      string        `json:"redirectUrl,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// SessionLink is what a caller needs to send the patient to the gateway.
type SessionLink struct {
	SessionID        uuid.UUID     `json:"sessionId"`
	RedirectURL      string        `json:"paymentUrl"`
	GatewayReference string        `json:"gatewayReference"`
	Status           SessionStatus `json:"status"`
	// Reused is true when an existing pending session was returned.
	Reused bool `json:"reused"`
}

func linkFor(s *Session, reused bool) *SessionLink {
	return &SessionLink{
		SessionID:        s.ID,
		RedirectURL:      s.RedirectURL,
		GatewayReference: s.GatewayReference,
		Status:           s.Status,
		Reused:           reused,
	}
}

// GatewayError wraps a failure talking to the payment gateway. The
// appointment is unaffected; the caller may offer a retry.
type GatewayError struct {
	Gateway   string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payments: %s gateway: %v", e.Gateway, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a retryable gateway failure.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return errors.Is(err, ErrSessionBusy)
}
