// Package slots decides whether a proposed appointment slot may be booked.
// Validation is side-effect free and may be called repeatedly.
package slots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/directory"
)

var tracer = otel.Tracer("appointments.internal.slots")

const (
	DefaultLeadTime           = 30 * time.Minute
	DefaultMaxDurationMinutes = 240
	DefaultBusyWindow         = 2 * time.Hour

	// busyWarningThreshold is the number of nearby appointments at which
	// busy_schedule is raised from info to warning.
	busyWarningThreshold = 3
)

// Candidate is a proposed slot.
type Candidate struct {
	PatientID       string
	ProviderID      string
	StartTime       time.Time
	DurationMinutes int
	Type            appointments.ServiceType
}

// AppointmentLister is the read side of appointments.Store the validator needs.
type AppointmentLister interface {
	ListActiveForPatient(ctx context.Context, patientID string, from, to time.Time) ([]*appointments.Appointment, error)
	ListActiveForProvider(ctx context.Context, providerID string, from, to time.Time) ([]*appointments.Appointment, error)
}

// Config holds the thresholds used by the validator.
type Config struct {
	LeadTime           time.Duration
	MaxDurationMinutes int
	BusyWindow         time.Duration
	// Location defines calendar days for same_day_multiple.
	Location *time.Location
}

// DefaultConfig returns the standard thresholds in UTC.
func DefaultConfig() Config {
	return Config{
		LeadTime:           DefaultLeadTime,
		MaxDurationMinutes: DefaultMaxDurationMinutes,
		BusyWindow:         DefaultBusyWindow,
		Location:           time.UTC,
	}
}

// Validator evaluates candidates against hard rules and soft conflicts.
type Validator struct {
	dir     directory.Directory
	appts   AppointmentLister
	catalog *appointments.Catalog
	cfg     Config
	now     func() time.Time
}

// NewValidator builds a validator. Zero-valued config fields take their defaults.
func NewValidator(dir directory.Directory, appts AppointmentLister, catalog *appointments.Catalog, cfg Config) *Validator {
	if dir == nil || appts == nil {
		panic("slots: directory and appointment lister required")
	}
	if catalog == nil {
		catalog = appointments.DefaultCatalog()
	}
	defaults := DefaultConfig()
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = defaults.LeadTime
	}
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = defaults.MaxDurationMinutes
	}
	if cfg.BusyWindow <= 0 {
		cfg.BusyWindow = defaults.BusyWindow
	}
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}
	return &Validator{
		dir:     dir,
		appts:   appts,
		catalog: catalog,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the evaluation instant source (tests).
func (v *Validator) WithClock(now func() time.Time) *Validator {
	if now != nil {
		v.now = now
	}
	return v
}

// Config returns the effective thresholds.
func (v *Validator) Config() Config {
	return v.cfg
}

// Validate runs every hard check and, when none fail, the soft conflict checks.
func (v *Validator) Validate(ctx context.Context, c Candidate) (Result, error) {
	ctx, span := tracer.Start(ctx, "slots.validate")
	defer span.End()
	span.SetAttributes(
		attribute.String("slots.provider_id", c.ProviderID),
		attribute.String("slots.service_type", string(c.Type)),
	)

	res, err := v.validate(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return res, err
	}
	span.SetAttributes(
		attribute.Bool("slots.valid", res.Valid),
		attribute.Int("slots.errors", len(res.Errors)),
		attribute.Int("slots.warnings", len(res.Warnings)),
	)
	return res, nil
}

func (v *Validator) validate(ctx context.Context, c Candidate) (Result, error) {
	errs, err := v.CheckHard(ctx, c)
	if err != nil {
		return Result{}, err
	}
	if len(errs) > 0 {
		return newResult(errs, nil), nil
	}

	// Look back far enough to catch a maximum-length appointment still running
	// at the candidate start, and forward to whichever ends later: the busy
	// window or the candidate slot.
	lookback := v.cfg.BusyWindow
	if maxDur := time.Duration(v.cfg.MaxDurationMinutes) * time.Minute; maxDur > lookback {
		lookback = maxDur
	}
	until := c.StartTime.Add(v.cfg.BusyWindow)
	if end := c.StartTime.Add(time.Duration(c.DurationMinutes) * time.Minute); end.After(until) {
		until = end
	}
	providerAppts, err := v.appts.ListActiveForProvider(ctx, c.ProviderID, c.StartTime.Add(-lookback), until)
	if err != nil {
		return Result{}, fmt.Errorf("slots: load provider schedule: %w", err)
	}
	if taken := OverlapViolation(c, providerAppts); taken != nil {
		return newResult([]Violation{*taken}, nil), nil
	}

	var warnings []Warning
	sameDay, err := v.sameDayMultiple(ctx, c)
	if err != nil {
		return Result{}, err
	}
	if sameDay != nil {
		warnings = append(warnings, sameDay)
	}
	if busy := v.busySchedule(c, providerAppts); busy != nil {
		warnings = append(warnings, busy)
	}
	return newResult(nil, warnings), nil
}

// CheckHard runs only the blocking checks that do not depend on other
// appointments. The orchestrator re-runs it at the instant of persistence.
func (v *Validator) CheckHard(ctx context.Context, c Candidate) ([]Violation, error) {
	var errs []Violation

	if _, err := v.dir.Provider(ctx, c.ProviderID); err != nil {
		if !errors.Is(err, directory.ErrProviderNotFound) {
			return nil, fmt.Errorf("slots: provider lookup: %w", err)
		}
		errs = append(errs, Violation{Code: CodeProviderNotFound, Message: fmt.Sprintf("provider %q does not exist", c.ProviderID)})
	}
	if _, err := v.dir.Patient(ctx, c.PatientID); err != nil {
		if !errors.Is(err, directory.ErrPatientNotFound) {
			return nil, fmt.Errorf("slots: patient lookup: %w", err)
		}
		errs = append(errs, Violation{Code: CodePatientNotFound, Message: fmt.Sprintf("patient %q does not exist", c.PatientID)})
	}

	if c.DurationMinutes <= 0 || c.DurationMinutes > v.cfg.MaxDurationMinutes {
		errs = append(errs, Violation{
			Code:       CodeInvalidDuration,
			Message:    fmt.Sprintf("duration must be between 1 and %d minutes", v.cfg.MaxDurationMinutes),
			MaxMinutes: v.cfg.MaxDurationMinutes,
		})
	}

	minimum := v.now().Add(v.cfg.LeadTime)
	if c.StartTime.Before(minimum) {
		errs = append(errs, Violation{
			Code:        CodeTooSoon,
			Message:     fmt.Sprintf("appointments must start at least %s from now", v.cfg.LeadTime),
			MinimumTime: &minimum,
		})
	}
	return errs, nil
}

// OverlapViolation returns slot_taken when any active appointment in existing
// overlaps the candidate slot.
func OverlapViolation(c Candidate, existing []*appointments.Appointment) *Violation {
	for _, appt := range existing {
		if appt.Status.Active() && appt.ProviderID == c.ProviderID && appt.Overlaps(c.StartTime, c.DurationMinutes) {
			return &Violation{
				Code:                     CodeSlotTaken,
				Message:                  "provider already has an appointment in this slot",
				ConflictingAppointmentID: appt.ID.String(),
			}
		}
	}
	return nil
}

func (v *Validator) sameDayMultiple(ctx context.Context, c Candidate) (*SameDayMultiple, error) {
	local := c.StartTime.In(v.cfg.Location)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, v.cfg.Location)
	dayEnd := dayStart.AddDate(0, 0, 1)

	existing, err := v.appts.ListActiveForPatient(ctx, c.PatientID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("slots: load patient day: %w", err)
	}
	if len(existing) == 0 {
		return nil, nil
	}
	w := &SameDayMultiple{Level: SeverityWarning}
	for _, appt := range existing {
		w.ExistingAppointments = append(w.ExistingAppointments, ExistingAppointment{
			AppointmentID: appt.ID.String(),
			Time:          appt.StartTime.In(v.cfg.Location).Format("15:04"),
			StartTime:     appt.StartTime,
			Type:          appt.Type,
			Status:        appt.Status,
		})
	}
	return w, nil
}

func (v *Validator) busySchedule(c Candidate, providerAppts []*appointments.Appointment) *BusySchedule {
	from := c.StartTime.Add(-v.cfg.BusyWindow)
	to := c.StartTime.Add(v.cfg.BusyWindow)
	var nearby []*appointments.Appointment
	for _, appt := range providerAppts {
		if !appt.StartTime.Before(from) && appt.StartTime.Before(to) {
			nearby = append(nearby, appt)
		}
	}
	if len(nearby) == 0 {
		return nil
	}
	w := &BusySchedule{
		Level:         SeverityInfo,
		WindowMinutes: int(v.cfg.BusyWindow / time.Minute),
	}
	if len(nearby) >= busyWarningThreshold {
		w.Level = SeverityWarning
	}
	for _, appt := range nearby {
		w.NearbyAppointments = append(w.NearbyAppointments, NearbyAppointment{
			AppointmentID: appt.ID.String(),
			Time:          appt.StartTime.In(v.cfg.Location).Format("15:04"),
			StartTime:     appt.StartTime,
			PatientID:     appt.PatientID,
			Specialty:     v.catalog.Specialty(appt.Type),
			Status:        appt.Status,
		})
	}
	return w
}
