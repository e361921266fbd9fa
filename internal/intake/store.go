package intake

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists intake forms keyed by appointment.
type Store interface {
	// Ensure creates an empty form if none exists and returns the current row.
	Ensure(ctx context.Context, appointmentID uuid.UUID, patientID string) (*Form, error)
	// Submit upserts the form data and marks it completed. Completion is
	// sticky: completed_at keeps its first value.
	Submit(ctx context.Context, appointmentID uuid.UUID, patientID string, data json.RawMessage) (*Form, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	forms map[uuid.UUID]*Form
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{forms: make(map[uuid.UUID]*Form), now: time.Now}
}

func (s *MemoryStore) Ensure(ctx context.Context, appointmentID uuid.UUID, patientID string) (*Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.forms[appointmentID]
	if !ok {
		now := s.now().UTC()
		f = &Form{AppointmentID: appointmentID, PatientID: patientID, CreatedAt: now, UpdatedAt: now}
		s.forms[appointmentID] = f
	}
	return copyForm(f), nil
}

func (s *MemoryStore) Submit(ctx context.Context, appointmentID uuid.UUID, patientID string, data json.RawMessage) (*Form, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	f, ok := s.forms[appointmentID]
	if !ok {
		f = &Form{AppointmentID: appointmentID, PatientID: patientID, CreatedAt: now}
		s.forms[appointmentID] = f
	}
	f.FormData = append(json.RawMessage(nil), data...)
	f.Completed = true
	if f.CompletedAt == nil {
		f.CompletedAt = &now
	}
	f.UpdatedAt = now
	return copyForm(f), nil
}

func copyForm(f *Form) *Form {
	cp := *f
	cp.FormData = append(json.RawMessage(nil), f.FormData...)
	if f.CompletedAt != nil {
		t := *f.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
