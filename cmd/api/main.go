package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/appointment-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/appointment-engine/internal/config"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting appointment engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := connectInfra(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect infrastructure", "error", err)
		os.Exit(1)
	}
	defer infra.Close()

	app, err := bootstrap.Build(cfg, infra, nil, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	if app.RateLimiter != nil {
		go app.RateLimiter.RunSweeper(ctx, time.Minute)
	}

	srv := newHTTPServer(cfg, app.Handler)

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectInfra opens Postgres (pool and database/sql) and Redis when configured.
func connectInfra(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*bootstrap.Infra, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	infra := &bootstrap.Infra{}
	pool, err := bootstrap.BuildPostgresPool(connectCtx, cfg)
	if err != nil {
		return nil, err
	}
	infra.Pool = pool
	if pool != nil {
		db, err := bootstrap.OpenSQLDB(cfg)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.SQLDB = db
	}
	infra.Redis = bootstrap.BuildRedisClient(connectCtx, cfg, logger, true)
	return infra, nil
}

func newHTTPServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	// WriteTimeout leaves room for a full payment gateway call.
	writeTimeout := 15 * time.Second
	if needed := cfg.PaymentGatewayTimeout + 5*time.Second; needed > writeTimeout {
		writeTimeout = needed
	}
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
