package appointments

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ServiceType is the service category an appointment is booked under.
type ServiceType string

const (
	TypeGeneralConsultation    ServiceType = "general_consultation"
	TypeFollowUp               ServiceType = "follow_up"
	TypeTelehealthConsultation ServiceType = "telehealth_consultation"
	TypeQuitlineSmoking        ServiceType = "quitline_smoking_cessation"
	TypeNutritionCounseling    ServiceType = "nutrition_counseling"
	TypeMentalHealthAssessment ServiceType = "mental_health_assessment"
)

// Tariff describes what booking a service type implies.
type Tariff struct {
	// PriceCents is copied onto the appointment at creation; nil means free.
	PriceCents *int64 `json:"price_cents,omitempty"`
	// Gated types require an intake questionnaire around the visit.
	Gated bool `json:"gated,omitempty"`
	// Virtual types get a meeting link at creation.
	Virtual   bool   `json:"virtual,omitempty"`
	Specialty string `json:"specialty,omitempty"`
}

// Catalog maps service types to their tariffs.
type Catalog struct {
	tariffs  map[ServiceType]Tariff
	fallback ServiceType
}

func cents(v int64) *int64 { return &v }

// DefaultCatalog returns the built-in service catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[ServiceType]Tariff{
		TypeGeneralConsultation:    {Specialty: "general_practice"},
		TypeFollowUp:               {Specialty: "general_practice"},
		TypeTelehealthConsultation: {Virtual: true, Specialty: "general_practice"},
		TypeQuitlineSmoking:        {PriceCents: cents(15000), Gated: true, Specialty: "addiction_medicine"},
		TypeNutritionCounseling:    {PriceCents: cents(9000), Gated: true, Specialty: "nutrition"},
		TypeMentalHealthAssessment: {Gated: true, Specialty: "psychiatry"},
	}, TypeGeneralConsultation)
}

// NewCatalog builds a catalog. fallback is used when a booking names no type.
func NewCatalog(tariffs map[ServiceType]Tariff, fallback ServiceType) *Catalog {
	copied := make(map[ServiceType]Tariff, len(tariffs))
	for k, v := range tariffs {
		copied[ServiceType(normalizeType(string(k)))] = v
	}
	return &Catalog{tariffs: copied, fallback: fallback}
}

// ParseCatalog decodes a JSON object of type -> tariff, e.g. from SERVICE_CATALOG_JSON.
func ParseCatalog(raw string) (*Catalog, error) {
	var decoded map[string]Tariff
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("appointments: parse catalog: %w", err)
	}
	tariffs := make(map[ServiceType]Tariff, len(decoded))
	for name, tariff := range decoded {
		if key := normalizeType(name); key != "" {
			tariffs[ServiceType(key)] = tariff
		}
	}
	if len(tariffs) == 0 {
		return nil, fmt.Errorf("appointments: catalog is empty")
	}
	fallback := TypeGeneralConsultation
	if _, ok := tariffs[fallback]; !ok {
		keys := make([]string, 0, len(tariffs))
		for k := range tariffs {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		fallback = ServiceType(keys[0])
	}
	return NewCatalog(tariffs, fallback), nil
}

// Resolve normalizes a requested type, defaulting to the fallback when empty.
func (c *Catalog) Resolve(raw string) (ServiceType, error) {
	name := normalizeType(raw)
	if name == "" {
		return c.fallback, nil
	}
	if _, ok := c.tariffs[ServiceType(name)]; !ok {
		return "", fmt.Errorf("appointments: unknown service type %q", raw)
	}
	return ServiceType(name), nil
}

// Lookup returns the tariff for t.
func (c *Catalog) Lookup(t ServiceType) (Tariff, bool) {
	tariff, ok := c.tariffs[t]
	return tariff, ok
}

// IsGated reports whether t requires an intake form.
func (c *Catalog) IsGated(t ServiceType) bool {
	return c.tariffs[t].Gated
}

// Price returns a fresh copy of the tariff price for t, or nil.
func (c *Catalog) Price(t ServiceType) *int64 {
	p := c.tariffs[t].PriceCents
	if p == nil {
		return nil
	}
	return cents(*p)
}

// Specialty returns the specialty label configured for t.
func (c *Catalog) Specialty(t ServiceType) string {
	return c.tariffs[t].Specialty
}

func normalizeType(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
}
