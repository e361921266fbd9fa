package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	appconfig "github.com/wolfman30/appointment-engine/internal/config"
	"github.com/wolfman30/appointment-engine/pkg/logging"
)

func TestNewHTTPServerTimeouts(t *testing.T) {
	srv := newHTTPServer(&appconfig.Config{Port: "9000", PaymentGatewayTimeout: 10 * time.Second}, http.NotFoundHandler())
	if srv.Addr != ":9000" {
		t.Fatalf("expected addr :9000, got %s", srv.Addr)
	}
	if srv.WriteTimeout != 15*time.Second {
		t.Fatalf("expected default write timeout, got %s", srv.WriteTimeout)
	}

	srv = newHTTPServer(&appconfig.Config{Port: "9000", PaymentGatewayTimeout: 30 * time.Second}, http.NotFoundHandler())
	if srv.WriteTimeout != 35*time.Second {
		t.Fatalf("expected write timeout to cover gateway call, got %s", srv.WriteTimeout)
	}
}

func TestConnectInfraWithoutURLs(t *testing.T) {
	infra, err := connectInfra(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer infra.Close()
	if infra.Pool != nil || infra.SQLDB != nil || infra.Redis != nil {
		t.Fatalf("expected no connections without configuration")
	}
}
