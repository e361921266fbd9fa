// Package appointments holds the appointment aggregate, its service catalog,
// the status state machine and the stores that persist it.
package appointments

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no-show"
)

// ActiveStatuses are the non-terminal states, in lifecycle order.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusInProgress}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Active reports whether s is a known, non-terminal status.
func (s Status) Active() bool {
	return s.Valid() && !s.Terminal()
}

// ParseStatus normalizes user input ("In_Progress", " no-show ") into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-"))
	if !s.Valid() {
		return "", fmt.Errorf("appointments: unknown status %q", raw)
	}
	return s, nil
}

// Appointment is the aggregate root; intake forms and payment sessions hang off it.
type Appointment struct {
	ID              uuid.UUID   `json:"id"`
	PatientID       string      `json:"patientId"`
	ProviderID      string      `json:"providerId"`
	StartTime       time.Time   `json:"startTime"`
	DurationMinutes int         `json:"durationMinutes"`
	Type            ServiceType `json:"type"`
	Status          Status      `json:"status"`
	PriceCents      *int64      `json:"priceCents,omitempty"`
	MeetingLink     string      `json:"meetingLink,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// MarshalJSON adds price, the tariff amount in currency units, beside priceCents.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type plain Appointment
	view := struct {
		plain
		Price *float64 `json:"price,omitempty"`
	}{plain: plain(a)}
	if a.PriceCents != nil {
		amount := float64(*a.PriceCents) / 100
		view.Price = &amount
	}
	return json.Marshal(view)
}

// EndTime is the instant the appointment slot ends.
func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Overlaps reports whether the appointment shares any instant with [start, start+duration).
func (a *Appointment) Overlaps(start time.Time, durationMinutes int) bool {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	return a.StartTime.Before(end) && start.Before(a.EndTime())
}

// Payable reports whether the appointment carries a positive price.
func (a *Appointment) Payable() bool {
	return a.PriceCents != nil && *a.PriceCents > 0
}
