// Package intake tracks the pre-visit intake form that gated service types
// ask patients to complete. The gate is advisory: it reports whether a form
// is required and complete but never blocks booking or status changes.
package intake

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotGated is returned when submitting a form for a service type that has no intake.
	ErrNotGated = errors.New("intake form not required for this appointment")

	// ErrInvalidFormData is returned when the submitted data is not a JSON object.
	ErrInvalidFormData = errors.New("form data must be a JSON object")
)

// Form is the single intake record for an appointment.
type Form struct {
	AppointmentID uuid.UUID       `json:"appointmentId"`
	PatientID     string          `json:"patientId"`
	FormData      json.RawMessage `json:"formData,omitempty"`
	Completed     bool            `json:"completed"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Status is what the patient portal needs to render the intake step.
type Status struct {
	Required    bool            `json:"required"`
	Completed   bool            `json:"completed"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	FormData    json.RawMessage `json:"formData,omitempty"`
}

func statusOf(f *Form) *Status {
	st := &Status{Required: true, Completed: f.Completed, CompletedAt: f.CompletedAt}
	if f.Completed {
		st.FormData = f.FormData
	}
	return st
}

// validFormData reports whether raw is a JSON object.
func validFormData(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return len(raw) > 0 && json.Unmarshal(raw, &obj) == nil && obj != nil
}
