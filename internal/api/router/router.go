package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/appointment-engine/internal/booking"
	httpmiddleware "github.com/wolfman30/appointment-engine/internal/http/middleware"
	"github.com/wolfman30/appointment-engine/internal/intake"
	"github.com/wolfman30/appointment-engine/internal/payments"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Appointments   *booking.Handler
	Payments       *payments.Handler
	Intake         *intake.Handler
	StripeWebhook  *payments.StripeWebhookHandler
	FakeCheckout   *payments.FakeCheckoutHandler
	MetricsHandler http.Handler

	CORSAllowedOrigins []string

	// ActorJWTSecret switches actor identity from trusted headers to signed bearer tokens.
	ActorJWTSecret string

	// RateLimiter throttles booking and payment creation (optional).
	RateLimiter *httpmiddleware.RateLimiter

	// HealthChecks are probed by /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks, dev checkout)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
		if cfg.FakeCheckout != nil {
			public.Mount("/payments/fake", cfg.FakeCheckout.Routes())
		}
	})

	// Actor-scoped API routes
	r.Group(func(api chi.Router) {
		if cfg.ActorJWTSecret != "" {
			api.Use(httpmiddleware.ActorJWT(cfg.ActorJWTSecret))
		} else {
			api.Use(httpmiddleware.ActorHeaders())
		}
		limited := func(r chi.Router) chi.Router {
			if cfg.RateLimiter == nil {
				return r
			}
			return r.With(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		if cfg.Appointments != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Post("/validate", cfg.Appointments.Validate)
				limited(r).Post("/", cfg.Appointments.Create)
				r.Get("/{id}", cfg.Appointments.Get)
				r.Patch("/{id}/status", cfg.Appointments.UpdateStatus)
				if cfg.Payments != nil {
					r.Get("/{id}/payment-status", cfg.Payments.PaymentStatus)
				}
			})
		}
		if cfg.Payments != nil {
			limited(api).Post("/payment/create", cfg.Payments.CreatePayment)
		}
		if cfg.Intake != nil {
			api.Route("/patient/intake-form", func(r chi.Router) {
				r.Get("/", cfg.Intake.Get)
				r.Post("/", cfg.Intake.Submit)
				r.Put("/", cfg.Intake.Submit)
			})
		}
	})

	return r
}

// healthHandler probes each dependency with a short deadline. Any failure
// turns the response into 503 with the failing component named.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				resp["status"] = "degraded"
				resp[name] = err.Error()
				continue
			}
			resp[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
