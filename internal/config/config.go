package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking rules
	BookingLeadTime           time.Duration
	BookingMaxDurationMinutes int
	BookingBusyWindow         time.Duration
	ClinicTimezone            string
	ServiceCatalogJSON        string
	MeetingBaseURL            string

	// Payments
	StripeSecretKey       string
	StripeWebhookSecret   string
	StripeSuccessURL      string
	StripeCancelURL       string
	StripeDryRun          bool
	PaymentGatewayTimeout time.Duration
	PaymentLockTTL        time.Duration
	PaymentCurrency       string
	AllowFakePayments     bool

	// Notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	EmailSendTimeout  time.Duration

	// HTTP surface
	CORSAllowedOrigins []string
	ActorJWTSecret     string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		BookingLeadTime:           getEnvAsDuration("BOOKING_LEAD_TIME", 30*time.Minute),
		BookingMaxDurationMinutes: getEnvAsInt("BOOKING_MAX_DURATION_MINUTES", 240),
		BookingBusyWindow:         getEnvAsDuration("BOOKING_BUSY_WINDOW", 2*time.Hour),
		ClinicTimezone:            getEnv("CLINIC_TIMEZONE", "UTC"),
		ServiceCatalogJSON:        getEnv("SERVICE_CATALOG_JSON", ""),
		MeetingBaseURL:            getEnv("MEETING_BASE_URL", "https://meet.jit.si"),

		StripeSecretKey:       getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:   getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:      getEnv("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:       getEnv("STRIPE_CANCEL_URL", ""),
		StripeDryRun:          getEnvAsBool("STRIPE_DRY_RUN", false),
		PaymentGatewayTimeout: getEnvAsDuration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
		PaymentLockTTL:        getEnvAsDuration("PAYMENT_LOCK_TTL", 15*time.Second),
		PaymentCurrency:       strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
		AllowFakePayments:     getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", ""),
		EmailSendTimeout:  getEnvAsDuration("EMAIL_SEND_TIMEOUT", 5*time.Second),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		ActorJWTSecret:     getEnv("ACTOR_JWT_SECRET", ""),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 5),
	}
}

// StripeConfigured reports whether live Stripe checkout can be used.
func (c *Config) StripeConfigured() bool {
	return strings.TrimSpace(c.StripeSecretKey) != ""
}

// Location resolves ClinicTimezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.ClinicTimezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
