package slots

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wolfman30/appointment-engine/internal/appointments"
)

// Code identifies a hard validation failure.
type Code string

const (
	CodeProviderNotFound Code = "provider_not_found"
	CodePatientNotFound  Code = "patient_not_found"
	CodeTooSoon          Code = "too_soon"
	CodeInvalidDuration  Code = "invalid_duration"
	CodeSlotTaken        Code = "slot_taken"
)

// Violation is a hard error: any violation blocks the booking.
type Violation struct {
	Code    Code   `json:"type"`
	Message string `json:"message"`
	// MinimumTime is the earliest bookable start (too_soon only).
	MinimumTime *time.Time `json:"minimumTime,omitempty"`
	// MaxMinutes is the configured duration ceiling (invalid_duration only).
	MaxMinutes int `json:"maxMinutes,omitempty"`
	// ConflictingAppointmentID names the appointment holding the slot (slot_taken only).
	ConflictingAppointmentID string `json:"conflictingAppointmentId,omitempty"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// Severity ranks warnings for presentation. It never changes blocking behavior.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// WarningKind is the discriminant of the Warning sum type.
type WarningKind string

const (
	KindSameDayMultiple WarningKind = "same_day_multiple"
	KindBusySchedule    WarningKind = "busy_schedule"
)

// Warning is a soft, non-blocking finding. The concrete variants are
// *SameDayMultiple and *BusySchedule; switch on the type to read the payload.
type Warning interface {
	Kind() WarningKind
	Severity() Severity
	warning()
}

// ExistingAppointment summarizes a patient's other appointment on the same day.
type ExistingAppointment struct {
	AppointmentID string                   `json:"appointmentId"`
	Time          string                   `json:"time"`
	StartTime     time.Time                `json:"startTime"`
	Type          appointments.ServiceType `json:"type"`
	Status        appointments.Status      `json:"status"`
}

// SameDayMultiple: the patient already holds active appointments that day.
type SameDayMultiple struct {
	Level                Severity              `json:"-"`
	ExistingAppointments []ExistingAppointment `json:"existingAppointments"`
}

func (w *SameDayMultiple) Kind() WarningKind  { return KindSameDayMultiple }
func (w *SameDayMultiple) Severity() Severity { return w.Level }
func (*SameDayMultiple) warning()             {}

func (w *SameDayMultiple) MarshalJSON() ([]byte, error) {
	type payload SameDayMultiple
	return json.Marshal(struct {
		Type     WarningKind `json:"type"`
		Severity Severity    `json:"severity"`
		*payload
	}{w.Kind(), w.Level, (*payload)(w)})
}

// NearbyAppointment summarizes a provider appointment close to the candidate.
// PatientID is provider-visible only; see BusySchedule.Redacted.
type NearbyAppointment struct {
	AppointmentID string              `json:"appointmentId,omitempty"`
	Time          string              `json:"time"`
	StartTime     time.Time           `json:"startTime"`
	PatientID     string              `json:"patientId,omitempty"`
	Specialty     string              `json:"specialty,omitempty"`
	Status        appointments.Status `json:"status"`
}

// BusySchedule: the provider has other appointments inside the proximity window.
type BusySchedule struct {
	Level              Severity            `json:"-"`
	WindowMinutes      int                 `json:"windowMinutes"`
	NearbyAppointments []NearbyAppointment `json:"nearbyAppointments"`
}

func (w *BusySchedule) Kind() WarningKind  { return KindBusySchedule }
func (w *BusySchedule) Severity() Severity { return w.Level }
func (*BusySchedule) warning()             {}

func (w *BusySchedule) MarshalJSON() ([]byte, error) {
	type payload BusySchedule
	return json.Marshal(struct {
		Type     WarningKind `json:"type"`
		Severity Severity    `json:"severity"`
		*payload
	}{w.Kind(), w.Level, (*payload)(w)})
}

// Redacted returns a copy with patient identifiers and appointment ids removed,
// for showing to someone other than the provider.
func (w *BusySchedule) Redacted() *BusySchedule {
	out := &BusySchedule{Level: w.Level, WindowMinutes: w.WindowMinutes}
	for _, n := range w.NearbyAppointments {
		n.PatientID = ""
		n.AppointmentID = ""
		out.NearbyAppointments = append(out.NearbyAppointments, n)
	}
	return out
}

// Result is the outcome of validating a candidate slot.
type Result struct {
	Valid    bool        `json:"valid"`
	Errors   []Violation `json:"errors"`
	Warnings []Warning   `json:"warnings"`
}

func newResult(errs []Violation, warnings []Warning) Result {
	if errs == nil {
		errs = []Violation{}
	}
	if warnings == nil {
		warnings = []Warning{}
	}
	return Result{Valid: len(errs) == 0, Errors: errs, Warnings: warnings}
}

// RedactForPatient strips provider-only fields from every warning.
func (r Result) RedactForPatient() Result {
	out := Result{Valid: r.Valid, Errors: r.Errors, Warnings: make([]Warning, 0, len(r.Warnings))}
	for _, w := range r.Warnings {
		if busy, ok := w.(*BusySchedule); ok {
			w = busy.Redacted()
		}
		out.Warnings = append(out.Warnings, w)
	}
	return out
}
