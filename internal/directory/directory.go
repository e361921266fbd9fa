// Package directory resolves the patient and provider identities that
// appointments reference. The records themselves are owned elsewhere; this
// package only reads them.
package directory

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrProviderNotFound = errors.New("provider not found")
)

// Patient is the subset of the patient record the booking engine needs.
type Patient struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Provider is the subset of the provider record the booking engine needs.
type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
}

// Directory looks up patients and providers by id.
type Directory interface {
	Patient(ctx context.Context, id string) (*Patient, error)
	Provider(ctx context.Context, id string) (*Provider, error)
}

// StaticDirectory is an in-memory Directory for development and tests.
type StaticDirectory struct {
	mu        sync.RWMutex
	patients  map[string]Patient
	providers map[string]Provider
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		patients:  make(map[string]Patient),
		providers: make(map[string]Provider),
	}
}

// AddPatient registers or replaces a patient.
func (d *StaticDirectory) AddPatient(p Patient) *StaticDirectory {
	d.mu.Lock()
	d.patients[p.ID] = p
	d.mu.Unlock()
	return d
}

// AddProvider registers or replaces a provider.
func (d *StaticDirectory) AddProvider(p Provider) *StaticDirectory {
	d.mu.Lock()
	d.providers[p.ID] = p
	d.mu.Unlock()
	return d
}

func (d *StaticDirectory) Patient(ctx context.Context, id string) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (d *StaticDirectory) Provider(ctx context.Context, id string) (*Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}
