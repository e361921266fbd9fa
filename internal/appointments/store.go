package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotGuard runs inside the store's write critical section for a provider.
// It receives the provider's active appointments overlapping the new slot and
// aborts the insert by returning an error.
type SlotGuard func(ctx context.Context, overlapping []*Appointment) error

// Store persists appointments. Implementations must make CreateWithinSlot
// atomic per provider and UpdateStatus a compare-and-set on the current status.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListActiveForPatient returns non-terminal appointments starting in [from, to).
	ListActiveForPatient(ctx context.Context, patientID string, from, to time.Time) ([]*Appointment, error)
	// ListActiveForProvider returns non-terminal appointments starting in [from, to).
	ListActiveForProvider(ctx context.Context, providerID string, from, to time.Time) ([]*Appointment, error)
	CreateWithinSlot(ctx context.Context, appt *Appointment, guard SlotGuard) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
}
