// Package actor carries the caller's role and id through a request.
// Identity is asserted upstream; this service does not authenticate.
package actor

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/appointment-engine/internal/appointments"
)

type ctxKey string

const identityKey ctxKey = "appointments.actor"

// Identity is who is acting on an appointment.
type Identity struct {
	Role appointments.Actor
	ID   string
}

// ParseRole accepts "patient" or "provider" in any case.
func ParseRole(raw string) (appointments.Actor, error) {
	switch appointments.Actor(strings.ToLower(strings.TrimSpace(raw))) {
	case appointments.ActorPatient:
		return appointments.ActorPatient, nil
	case appointments.ActorProvider:
		return appointments.ActorProvider, nil
	default:
		return "", fmt.Errorf("actor: unknown role %q", raw)
	}
}

// WithIdentity stores the identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity if present.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.Role != ""
}

// CanAccess reports whether the identity may see a patient's appointment.
// Providers see everything; patients only their own, and a patient without
// an id sees nothing.
func (i Identity) CanAccess(patientID string) bool {
	if i.Role == appointments.ActorProvider {
		return true
	}
	return i.Role == appointments.ActorPatient && i.ID != "" && i.ID == patientID
}
