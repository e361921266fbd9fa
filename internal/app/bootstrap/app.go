package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/appointment-engine/internal/api/router"
	"github.com/wolfman30/appointment-engine/internal/appointments"
	"github.com/wolfman30/appointment-engine/internal/booking"
	appconfig "github.com/wolfman30/appointment-engine/internal/config"
	"github.com/wolfman30/appointment-engine/internal/directory"
	"github.com/wolfman30/appointment-engine/internal/events"
	httpmiddleware "github.com/wolfman30/appointment-engine/internal/http/middleware"
	"github.com/wolfman30/appointment-engine/internal/intake"
	"github.com/wolfman30/appointment-engine/internal/notify"
	"github.com/wolfman30/appointment-engine/internal/observability/metrics"
	"github.com/wolfman30/appointment-engine/internal/payments"
	"github.com/wolfman30/appointment-engine/internal/slots"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

// ErrNoGateway is returned when neither Stripe nor the fake checkout is enabled.
var ErrNoGateway = errors.New("bootstrap: no payment gateway configured; set STRIPE_SECRET_KEY or ALLOW_FAKE_PAYMENTS")

// App is the assembled HTTP surface plus the pieces main needs to run it.
type App struct {
	Handler     http.Handler
	RateLimiter *httpmiddleware.RateLimiter
	Metrics     *metrics.BookingMetrics
}

// Build wires stores, services and handlers on top of infra. reg may be nil.
func Build(cfg *appconfig.Config, infra *Infra, reg *prometheus.Registry, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if infra == nil {
		infra = &Infra{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := metrics.NewBookingMetrics(reg)

	catalog, err := BuildCatalog(cfg)
	if err != nil {
		return nil, err
	}
	gateway, err := BuildGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		apptStore    appointments.Store
		sessionStore payments.Store
		intakeStore  intake.Store
		processed    events.Claimer
	)
	if infra.Pool != nil {
		apptStore = appointments.NewPostgresStore(infra.Pool)
		sessionStore = payments.NewPostgresStore(infra.Pool)
		intakeStore = intake.NewPostgresStore(infra.Pool)
		processed = events.NewProcessedStore(infra.Pool)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
		apptStore = appointments.NewMemoryStore()
		sessionStore = payments.NewMemoryStore()
		intakeStore = intake.NewMemoryStore()
		processed = events.NewMemoryProcessedStore()
	}
	dir := BuildDirectory(infra)

	var locker payments.Locker = payments.NewLocalLocker()
	if infra.Redis != nil {
		locker = payments.NewRedisLocker(infra.Redis, cfg.PaymentLockTTL, 0)
	}

	notifier := notify.NewService(BuildEmailSender(cfg, logger), dir, cfg.Location(), logger).
		WithSendTimeout(cfg.EmailSendTimeout)

	coordinator := payments.NewCoordinator(sessionStore, apptStore, gateway, locker, logger).
		WithTimeout(cfg.PaymentGatewayTimeout).
		WithCurrency(cfg.PaymentCurrency).
		WithNotifier(notifier).
		WithMetrics(m)

	validator := slots.NewValidator(dir, apptStore, catalog, slots.Config{
		LeadTime:           cfg.BookingLeadTime,
		MaxDurationMinutes: cfg.BookingMaxDurationMinutes,
		BusyWindow:         cfg.BookingBusyWindow,
		Location:           cfg.Location(),
	})
	orchestrator := booking.NewOrchestrator(apptStore, validator, catalog, logger).
		WithPayments(coordinator).
		WithNotifier(notifier).
		WithMetrics(m).
		WithMeetingBaseURL(cfg.MeetingBaseURL)
	gate := intake.NewGate(intakeStore, apptStore, catalog, logger)

	routerCfg := &router.Config{
		Logger:             logger,
		Appointments:       booking.NewHandler(orchestrator, catalog, logger),
		Payments:           payments.NewHandler(coordinator, logger).WithAppointments(apptStore),
		Intake:             intake.NewHandler(gate, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ActorJWTSecret:     cfg.ActorJWTSecret,
		HealthChecks:       healthChecks(infra),
	}
	if cfg.StripeConfigured() {
		routerCfg.StripeWebhook = payments.NewStripeWebhookHandler(cfg.StripeWebhookSecret, coordinator, processed, logger).
			WithUnsignedEvents(cfg.Env == "development")
	}
	if gateway.Name() == "fake" {
		routerCfg.FakeCheckout = payments.NewFakeCheckoutHandler(sessionStore, coordinator, logger)
	}

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		routerCfg.RateLimiter = limiter
	}

	logger.Info("appointment engine wired",
		"postgres", infra.Pool != nil,
		"redis", infra.Redis != nil,
		"gateway", gateway.Name(),
	)
	return &App{Handler: router.New(routerCfg), RateLimiter: limiter, Metrics: m}, nil
}

// BuildCatalog returns the configured service catalog or the built-in one.
func BuildCatalog(cfg *appconfig.Config) (*appointments.Catalog, error) {
	if strings.TrimSpace(cfg.ServiceCatalogJSON) == "" {
		return appointments.DefaultCatalog(), nil
	}
	catalog, err := appointments.ParseCatalog(cfg.ServiceCatalogJSON)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: SERVICE_CATALOG_JSON: %w", err)
	}
	return catalog, nil
}

// BuildGateway prefers Stripe. The fake checkout is used when explicitly
// allowed, or in development when Stripe is not configured.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (payments.Gateway, error) {
	if cfg.StripeConfigured() {
		return payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL, logger).
			WithDryRun(cfg.StripeDryRun), nil
	}
	if cfg.AllowFakePayments || cfg.Env == "development" {
		return payments.NewFakeGateway(cfg.PublicBaseURL, logger), nil
	}
	return nil, ErrNoGateway
}

// BuildDirectory reads patients and providers from the database when one is
// configured, otherwise from a small built-in roster for local runs.
func BuildDirectory(infra *Infra) directory.Directory {
	if infra != nil && infra.SQLDB != nil {
		return directory.NewSQLDirectory(infra.SQLDB)
	}
	return directory.NewStaticDirectory().
		AddPatient(directory.Patient{ID: "patient-demo", Name: "Demo Patient", Email: "patient@example.com"}).
		AddProvider(directory.Provider{ID: "provider-demo", Name: "Dr. Demo", Specialty: "general_practice"})
}

// BuildEmailSender returns SendGrid when an API key is set, else a logging stub.
func BuildEmailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		return notify.NewStubEmailSender(logger)
	}
	return sender
}

func healthChecks(infra *Infra) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if infra.Pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return infra.Pool.Ping(ctx) }
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return infra.Redis.Ping(ctx).Err() }
	}
	return checks
}
