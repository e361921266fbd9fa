package appointments

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	price := c.Price(TypeQuitlineSmoking)
	require.NotNil(t, price)
	assert.Equal(t, int64(15000), *price)
	assert.True(t, c.IsGated(TypeQuitlineSmoking))

	assert.Nil(t, c.Price(TypeGeneralConsultation))
	assert.False(t, c.IsGated(TypeGeneralConsultation))

	tariff, ok := c.Lookup(TypeTelehealthConsultation)
	require.True(t, ok)
	assert.True(t, tariff.Virtual)
}

func TestCatalogPriceIsACopy(t *testing.T) {
	c := DefaultCatalog()
	p := c.Price(TypeNutritionCounseling)
	*p = 1
	assert.Equal(t, int64(9000), *c.Price(TypeNutritionCounseling))
}

func TestCatalogResolve(t *testing.T) {
	c := DefaultCatalog()

	got, err := c.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, TypeGeneralConsultation, got)

	got, err = c.Resolve("Quitline-Smoking_Cessation")
	require.NoError(t, err)
	assert.Equal(t, TypeQuitlineSmoking, got)

	_, err = c.Resolve("aromatherapy")
	assert.Error(t, err)
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(`{"acupuncture":{"price_cents":4500,"specialty":"tcm"},"intake_visit":{"gated":true}}`)
	require.NoError(t, err)

	fallback, err := c.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, ServiceType("acupuncture"), fallback)
	assert.Equal(t, int64(4500), *c.Price("acupuncture"))
	assert.True(t, c.IsGated("intake_visit"))

	c, err = ParseCatalog(`{"General-Consultation":{},"Acupuncture":{"price_cents":4500}}`)
	require.NoError(t, err)
	fallback, err = c.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, TypeGeneralConsultation, fallback)
	got, err := c.Resolve("acupuncture")
	require.NoError(t, err)
	assert.Equal(t, int64(4500), *c.Price(got))

	_, err = ParseCatalog(`{}`)
	assert.Error(t, err)
	_, err = ParseCatalog(`not json`)
	assert.Error(t, err)
}

func TestAppointmentOverlaps(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	appt := &Appointment{StartTime: start, DurationMinutes: 30}

	assert.True(t, appt.Overlaps(start.Add(15*time.Minute), 30))
	assert.True(t, appt.Overlaps(start.Add(-15*time.Minute), 30))
	assert.False(t, appt.Overlaps(start.Add(30*time.Minute), 30), "back-to-back slots do not overlap")
	assert.False(t, appt.Overlaps(start.Add(-30*time.Minute), 30))
	assert.Equal(t, start.Add(30*time.Minute), appt.EndTime())
}

func TestAppointmentJSONCarriesPrice(t *testing.T) {
	fee := int64(15000)
	raw, err := json.Marshal(&Appointment{Status: StatusScheduled, PriceCents: &fee})
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, float64(150), body["price"])
	assert.Equal(t, float64(15000), body["priceCents"])
	assert.Equal(t, "scheduled", body["status"])

	raw, err = json.Marshal(Appointment{Status: StatusScheduled})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "price")
}
