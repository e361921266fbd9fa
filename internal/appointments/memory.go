package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used in development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]*Appointment
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appts: make(map[uuid.UUID]*Appointment),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *appt
	return &copied, nil
}

func (s *MemoryStore) ListActiveForPatient(ctx context.Context, patientID string, from, to time.Time) ([]*Appointment, error) {
	return s.list(func(a *Appointment) bool {
		return a.PatientID == patientID && inRange(a.StartTime, from, to)
	}), nil
}

func (s *MemoryStore) ListActiveForProvider(ctx context.Context, providerID string, from, to time.Time) ([]*Appointment, error) {
	return s.list(func(a *Appointment) bool {
		return a.ProviderID == providerID && inRange(a.StartTime, from, to)
	}), nil
}

// CreateWithinSlot holds the store's write lock across the guard and the insert,
// which serializes all bookings in-process.
func (s *MemoryStore) CreateWithinSlot(ctx context.Context, appt *Appointment, guard SlotGuard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overlapping []*Appointment
	for _, existing := range s.appts {
		if existing.ProviderID == appt.ProviderID && existing.Status.Active() && existing.Overlaps(appt.StartTime, appt.DurationMinutes) {
			copied := *existing
			overlapping = append(overlapping, &copied)
		}
	}
	sortByStart(overlapping)
	if guard != nil {
		if err := guard(ctx, overlapping); err != nil {
			return err
		}
	}

	now := s.now()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.CreatedAt = now
	appt.UpdatedAt = now
	stored := *appt
	s.appts[appt.ID] = &stored
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if appt.Status != from {
		return nil, ErrStatusConflict
	}
	appt.Status = to
	appt.UpdatedAt = s.now()
	copied := *appt
	return &copied, nil
}

func (s *MemoryStore) list(match func(*Appointment) bool) []*Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Appointment
	for _, appt := range s.appts {
		if appt.Status.Active() && match(appt) {
			copied := *appt
			out = append(out, &copied)
		}
	}
	sortByStart(out)
	return out
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func sortByStart(appts []*Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
