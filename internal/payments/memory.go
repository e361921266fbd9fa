package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	// order of creation per appointment
	byAppt map[uuid.UUID][]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*Session),
		byAppt:   make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) Latest(ctx context.Context, appointmentID uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byAppt[appointmentID]
	if len(ids) == 0 {
		return nil, ErrSessionNotFound
	}
	for _, id := range ids {
		if s.sessions[id].Status == StatusPaid {
			cp := *s.sessions[id]
			return &cp, nil
		}
	}
	cp := *s.sessions[ids[len(ids)-1]]
	return &cp, nil
}

func (s *MemoryStore) Insert(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.Status == StatusPending {
		for _, id := range s.byAppt[session.AppointmentID] {
			if s.sessions[id].Status == StatusPending {
				return ErrPendingExists
			}
		}
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	cp := *session
	s.sessions[session.ID] = &cp
	s.byAppt[session.AppointmentID] = append(s.byAppt[session.AppointmentID], session.ID)
	return nil
}

func (s *MemoryStore) Attach(ctx context.Context, id uuid.UUID, reference, redirectURL string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.GatewayReference = reference
	sess.RedirectURL = redirectURL
	sess.UpdatedAt = time.Now().UTC()
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Status == StatusPending {
		sess.Status = StatusFailed
		sess.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) UpdateStatusByReference(ctx context.Context, reference string, status SessionStatus) (*Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if reference == "" || sess.GatewayReference != reference {
			continue
		}
		applied := canApply(sess.Status, status)
		if applied {
			now := time.Now().UTC()
			sess.Status = status
			sess.UpdatedAt = now
			if status == StatusPaid {
				for _, id := range s.byAppt[sess.AppointmentID] {
					if other := s.sessions[id]; id != sess.ID && other.Status == StatusPending {
						other.Status = StatusFailed
						other.UpdatedAt = now
					}
				}
			}
		}
		cp := *sess
		return &cp, applied, nil
	}
	return nil, false, ErrSessionNotFound
}
