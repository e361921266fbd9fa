package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/appointment-engine/pkg/logging"
)

// FakeGateway is a dev/demo gateway that points patients at an internal
// checkout page (see FakeCheckoutHandler) instead of a real provider.
//
// Only enable it when ALLOW_FAKE_PAYMENTS is set; never in production.
type FakeGateway struct {
	publicBaseURL string
	logger        *logging.Logger
}

func NewFakeGateway(publicBaseURL string, logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

func (g *FakeGateway) Name() string { return "fake" }

func (g *FakeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.SessionID == uuid.Nil {
		return nil, fmt.Errorf("payments: fake checkout requires session id")
	}
	if g.publicBaseURL == "" {
		return nil, fmt.Errorf("payments: fake checkout requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(g.publicBaseURL) {
		return nil, fmt.Errorf("payments: fake checkout PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	g.logger.Debug("fake checkout created", "session_id", req.SessionID, "appointment_id", req.AppointmentID)
	return &CheckoutResponse{
		URL:       fmt.Sprintf("%s/payments/fake/%s", g.publicBaseURL, req.SessionID),
		Reference: fakeReference(req.SessionID),
	}, nil
}

func fakeReference(sessionID uuid.UUID) string {
	return "fake:" + sessionID.String()
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
