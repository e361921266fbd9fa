package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/booking"
	"github.com/wolfman30/appointment-engine/internal/directory"
	httpmiddleware "github.com/wolfman30/appointment-engine/internal/http/middleware"
	"github.com/wolfman30/appointment-engine/internal/intake"
	"github.com/wolfman30/appointment-engine/internal/observability/metrics"
	"github.com/wolfman30/appointment-engine/internal/payments"
	"github.com/wolfman30/appointment-engine/internal/slots"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

const publicBase = "http://localhost:8080"

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	logger := logging.NewWithWriter("error", io.Discard)
	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)

	dir := directory.NewStaticDirectory().
		AddPatient(directory.Patient{ID: "pat-1", Name: "Ada Byron"}).
		AddProvider(directory.Provider{ID: "doc-1", Name: "Dr. Lee"})
	appts := appointments.NewMemoryStore()
	catalog := appointments.DefaultCatalog()

	sessions := payments.NewMemoryStore()
	coordinator := payments.NewCoordinator(sessions, appts, payments.NewFakeGateway(publicBase, logger), payments.NewLocalLocker(), logger).
		WithMetrics(m)
	validator := slots.NewValidator(dir, appts, catalog, slots.DefaultConfig())
	orch := booking.NewOrchestrator(appts, validator, catalog, logger).
		WithPayments(coordinator).
		WithMetrics(m)
	gate := intake.NewGate(intake.NewMemoryStore(), appts, catalog, logger)

	return &Config{
		Logger:         logger,
		Appointments:   booking.NewHandler(orch, catalog, logger),
		Payments:       payments.NewHandler(coordinator, logger).WithAppointments(appts),
		Intake:         intake.NewHandler(gate, logger),
		FakeCheckout:   payments.NewFakeCheckoutHandler(sessions, coordinator, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var asProvider = map[string]string{"X-Actor-Role": "provider", "X-Actor-ID": "doc-1"}

func futureSlot() string {
	return time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour).Format(time.RFC3339)
}

func bookRequest(serviceType appointments.ServiceType) map[string]any {
	return map[string]any{
		"patientId":       "pat-1",
		"providerId":      "doc-1",
		"startTime":       futureSlot(),
		"durationMinutes": 45,
		"type":            string(serviceType),
	}
}

func TestRouterHealthEndpoint(t *testing.T) {
	cfg := newTestConfig(t)
	rec := do(t, New(cfg), http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	cfg.HealthChecks = map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("connection refused") },
	}
	rec = do(t, New(cfg), http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","postgres":"ok","redis":"connection refused"}`, rec.Body.String())
}

func TestRouterBookingAndPaymentFlow(t *testing.T) {
	router := New(newTestConfig(t))

	rec := do(t, router, http.MethodPost, "/appointments", bookRequest(appointments.TypeQuitlineSmoking), asProvider)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Appointment struct {
			ID string `json:"id"`
		} `json:"appointment"`
		Payment struct {
			Status     string `json:"status"`
			PaymentURL string `json:"paymentUrl"`
			SessionID  string `json:"sessionId"`
		} `json:"payment"`
		IntakeRequired bool `json:"intakeRequired"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.IntakeRequired)
	assert.Equal(t, "pending", created.Payment.Status)
	require.Equal(t, publicBase+"/payments/fake/"+created.Payment.SessionID, created.Payment.PaymentURL)

	statusPath := "/appointments/" + created.Appointment.ID + "/payment-status"
	rec = do(t, router, http.MethodGet, statusPath, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"pending"}`, rec.Body.String())

	stranger := map[string]string{"X-Actor-Role": "patient", "X-Actor-ID": "pat-2"}
	rec = do(t, router, http.MethodGet, statusPath, nil, stranger)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, router, http.MethodPost, "/payment/create", map[string]string{"appointmentId": created.Appointment.ID}, stranger)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// a second create returns the same pending session
	rec = do(t, router, http.MethodPost, "/payment/create", map[string]string{"appointmentId": created.Appointment.ID}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, true, again["success"])
	assert.Equal(t, created.Payment.PaymentURL, again["paymentUrl"])

	rec = do(t, router, http.MethodPost, "/payments/fake/"+created.Payment.SessionID+"/complete", nil, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = do(t, router, http.MethodGet, statusPath, nil, nil)
	assert.JSONEq(t, `{"status":"paid"}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/payment/create", map[string]string{"appointmentId": created.Appointment.ID}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already_paid")
}

func TestRouterIntakeAndStatus(t *testing.T) {
	router := New(newTestConfig(t))

	rec := do(t, router, http.MethodPost, "/appointments", bookRequest(appointments.TypeMentalHealthAssessment), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Appointment struct {
			ID string `json:"id"`
		} `json:"appointment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Appointment.ID

	rec = do(t, router, http.MethodGet, "/patient/intake-form?appointmentId="+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"required":true,"completed":false}`, rec.Body.String())

	rec = do(t, router, http.MethodPut, "/patient/intake-form", map[string]any{"appointmentId": id, "formData": map[string]any{"mood": "ok"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed":true`)

	// intake is advisory; the provider can confirm regardless
	rec = do(t, router, http.MethodPatch, "/appointments/"+id+"/status", map[string]string{"status": "confirmed"}, asProvider)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPatch, "/appointments/"+id+"/status", map[string]string{"status": "confirmed"}, map[string]string{"X-Actor-Role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/appointments/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
}

func TestRouterRateLimitsPaymentCreation(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.RateLimiter = httpmiddleware.NewRateLimiter(0.001, 1)
	router := New(cfg)

	body := map[string]string{"appointmentId": "not-an-id"}
	rec := do(t, router, http.MethodPost, "/payment/create", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, router, http.MethodPost, "/payment/create", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// validation is not limited
	rec = do(t, router, http.MethodPost, "/appointments/validate", bookRequest(""), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := New(newTestConfig(t))
	rec := do(t, router, http.MethodPost, "/appointments", bookRequest(appointments.TypeGeneralConsultation), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `appointments_booking_attempts_total{outcome="booked",service_type="general_consultation"} 1`))
}

func TestRouterActorJWT(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ActorJWTSecret = "test-secret"
	router := New(cfg)

	rec := do(t, router, http.MethodPost, "/appointments", bookRequest(appointments.TypeGeneralConsultation), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Appointment struct {
			ID string `json:"id"`
		} `json:"appointment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/appointments/" + created.Appointment.ID + "/status"

	// plain headers are ignored in token mode
	rec = do(t, router, http.MethodPatch, path, map[string]string{"status": "confirmed"}, asProvider)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, httpmiddleware.ActorClaims{
		Role:             "provider",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "doc-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	rec = do(t, router, http.MethodPatch, path, map[string]string{"status": "confirmed"}, map[string]string{"Authorization": "Bearer " + signed})
	assert.Equal(t, http.StatusOK, rec.Code)
}
