package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/slots"
)

// ErrInvalidDraft is wrapped by every shape error NewDraft returns.
var ErrInvalidDraft = errors.New("invalid booking request")

// Request is the wire form of a booking or validation request.
type Request struct {
	PatientID            string `json:"patientId"`
	ProviderID           string `json:"providerId"`
	StartTime            string `json:"startTime"`
	DurationMinutes      int    `json:"durationMinutes"`
	Type                 string `json:"type,omitempty"`
	Notes                string `json:"notes,omitempty"`
	AcknowledgedWarnings bool   `json:"acknowledgedWarnings,omitempty"`
}

// Draft is a complete, immutable booking request. It is only built by
// NewDraft, so a Draft in hand always has every field resolved.
type Draft struct {
	patientID       string
	providerID      string
	startTime       time.Time
	durationMinutes int
	serviceType     appointments.ServiceType
	notes           string
	acknowledged    bool
}

// NewDraft checks the request shape and resolves the service type against
// the catalog. Scheduling rules (lead time, duration bounds, overlaps) are
// left to the slot validator.
func NewDraft(catalog *appointments.Catalog, req Request) (Draft, error) {
	if catalog == nil {
		catalog = appointments.DefaultCatalog()
	}
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return Draft{}, fmt.Errorf("%w: patientId is required", ErrInvalidDraft)
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		return Draft{}, fmt.Errorf("%w: providerId is required", ErrInvalidDraft)
	}
	rawStart := strings.TrimSpace(req.StartTime)
	if rawStart == "" {
		return Draft{}, fmt.Errorf("%w: startTime is required", ErrInvalidDraft)
	}
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: startTime must be RFC 3339", ErrInvalidDraft)
	}
	serviceType, err := catalog.Resolve(req.Type)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: unknown type %q", ErrInvalidDraft, req.Type)
	}
	return Draft{
		patientID:       patientID,
		providerID:      providerID,
		startTime:       start.UTC(),
		durationMinutes: req.DurationMinutes,
		serviceType:     serviceType,
		notes:           strings.TrimSpace(req.Notes),
		acknowledged:    req.AcknowledgedWarnings,
	}, nil
}

// WithAcknowledgement returns a copy of d that proceeds past soft warnings.
func (d Draft) WithAcknowledgement() Draft {
	d.acknowledged = true
	return d
}

func (d Draft) Acknowledged() bool { return d.acknowledged }
func (d Draft) Notes() string      { return d.notes }

// Candidate is the slot the draft asks for.
func (d Draft) Candidate() slots.Candidate {
	return slots.Candidate{
		PatientID:       d.patientID,
		ProviderID:      d.providerID,
		StartTime:       d.startTime,
		DurationMinutes: d.durationMinutes,
		Type:            d.serviceType,
	}
}
