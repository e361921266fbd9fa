package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest describes a hosted checkout to open with the gateway.
type CheckoutRequest struct {
	SessionID     uuid.UUID
	AppointmentID uuid.UUID
	PatientID     string
	AmountCents   int64
	Currency      string
	Description   string
	StartTime     time.Time
}

// CheckoutResponse is the gateway's handle for a hosted checkout.
type CheckoutResponse struct {
	URL       string
	Reference string
}

// Gateway opens hosted checkout sessions with an external payment provider.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}
