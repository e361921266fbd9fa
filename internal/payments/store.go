package payments

import (
	"context"

	"github.com/google/uuid"
)

// Store persists payment sessions. Historical sessions are kept; the most
// recently created one for an appointment is authoritative unless an
// earlier one was paid.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// Latest returns the paid session if there is one, else the newest.
	// ErrSessionNotFound when the appointment has no sessions.
	Latest(ctx context.Context, appointmentID uuid.UUID) (*Session, error)
	// Insert returns ErrPendingExists if the appointment already has a pending session.
	Insert(ctx context.Context, session *Session) error
	Attach(ctx context.Context, id uuid.UUID, reference, redirectURL string) (*Session, error)
	// MarkFailed fails a session only while it is pending.
	MarkFailed(ctx context.Context, id uuid.UUID) error
	// UpdateStatusByReference applies a gateway outcome. Paid sessions never
	// change; a newly paid session fails any pending sibling. applied is
	// false when the update was a no-op.
	UpdateStatusByReference(ctx context.Context, reference string, status SessionStatus) (session *Session, applied bool, err error)
}

// canApply reports whether a session in status cur may move to next.
func canApply(cur, next SessionStatus) bool {
	if cur == StatusPaid || cur == next {
		return false
	}
	return next == StatusPaid || next == StatusFailed
}
