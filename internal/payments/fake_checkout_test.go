package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestFakeGateway_RequiresBaseURL(t *testing.T) {
	gw := NewFakeGateway("", nil)
	_, err := gw.CreateCheckout(context.Background(), CheckoutRequest{
		SessionID:     uuid.New(),
		AppointmentID: uuid.New(),
		AmountCents:   5000,
	})
	if err == nil {
		t.Fatalf("expected error for missing PUBLIC_BASE_URL")
	}
}

func TestFakeGateway_RejectsRelativeBaseURL(t *testing.T) {
	gw := NewFakeGateway("localhost:8080", nil)
	_, err := gw.CreateCheckout(context.Background(), CheckoutRequest{SessionID: uuid.New(), AmountCents: 5000})
	if err == nil {
		t.Fatalf("expected error for non-absolute base URL")
	}
}

func TestFakeGateway_RequiresSession(t *testing.T) {
	gw := NewFakeGateway("https://example.com", nil)
	_, err := gw.CreateCheckout(context.Background(), CheckoutRequest{
		AppointmentID: uuid.New(),
		AmountCents:   5000,
	})
	if err == nil {
		t.Fatalf("expected error for missing session id")
	}
}

func TestFakeGateway_ReturnsInternalURL(t *testing.T) {
	sessionID := uuid.New()
	gw := NewFakeGateway("https://clinic.example.com/", nil)
	resp, err := gw.CreateCheckout(context.Background(), CheckoutRequest{
		SessionID:     sessionID,
		AppointmentID: uuid.New(),
		AmountCents:   5000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://clinic.example.com/payments/fake/" + sessionID.String()
	if resp.URL != want {
		t.Fatalf("unexpected url: got %s want %s", resp.URL, want)
	}
	if resp.Reference != "fake:"+sessionID.String() {
		t.Fatalf("unexpected reference: %s", resp.Reference)
	}
}
