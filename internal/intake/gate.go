package intake

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

var tracer = otel.Tracer("appointments.internal.intake")

// AppointmentReader loads the appointment an intake form belongs to.
type AppointmentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

// Gate decides whether an appointment needs an intake form and records
// submissions.
type Gate struct {
	store   Store
	appts   AppointmentReader
	catalog *appointments.Catalog
	logger  *logging.Logger
}

func NewGate(store Store, appts AppointmentReader, catalog *appointments.Catalog, logger *logging.Logger) *Gate {
	if store == nil || appts == nil {
		panic("intake: store and appointment reader required")
	}
	if catalog == nil {
		catalog = appointments.DefaultCatalog()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{store: store, appts: appts, catalog: catalog, logger: logger}
}

// IsRequired reports whether the service type is gated.
func (g *Gate) IsRequired(t appointments.ServiceType) bool {
	return g.catalog.IsGated(t)
}

// Appointment loads the appointment behind an intake request.
func (g *Gate) Appointment(ctx context.Context, appointmentID uuid.UUID) (*appointments.Appointment, error) {
	return g.appts.Get(ctx, appointmentID)
}

// GetStatus reports the intake state of an appointment, creating the empty
// form on first access for gated types.
func (g *Gate) GetStatus(ctx context.Context, appointmentID uuid.UUID) (*Status, error) {
	ctx, span := tracer.Start(ctx, "intake.get_status")
	defer span.End()
	span.SetAttributes(attribute.String("appointments.appointment_id", appointmentID.String()))

	appt, err := g.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !g.IsRequired(appt.Type) {
		return &Status{Required: false}, nil
	}
	form, err := g.store.Ensure(ctx, appt.ID, appt.PatientID)
	if err != nil {
		return nil, err
	}
	return statusOf(form), nil
}

// Submit stores the patient's answers. The first submission completes the
// form; later ones replace the data but never un-complete it.
func (g *Gate) Submit(ctx context.Context, appointmentID uuid.UUID, data json.RawMessage) (*Form, error) {
	ctx, span := tracer.Start(ctx, "intake.submit")
	defer span.End()
	span.SetAttributes(attribute.String("appointments.appointment_id", appointmentID.String()))

	appt, err := g.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !g.IsRequired(appt.Type) {
		return nil, ErrNotGated
	}
	if !validFormData(data) {
		return nil, ErrInvalidFormData
	}
	form, err := g.store.Submit(ctx, appt.ID, appt.PatientID, data)
	if err != nil {
		return nil, err
	}
	g.logger.Info("intake form submitted", "appointment_id", appt.ID, "service_type", appt.Type)
	return form, nil
}
