package app

import (
	"context"
	"testing"

	coreconfig "github.com/m3rciful/tradebot/core/config"
	"github.com/m3rciful/tradebot/internal/config"
)

type otherCarrier struct{}

func (otherCarrier) CoreConfig() *coreconfig.Config { return &coreconfig.Config{} }

func TestBootstrapRejectsForeignConfig(t *testing.T) {
	if _, err := Bootstrap(otherCarrier{}); err == nil {
		t.Fatal("expected error for foreign config type")
	}
}

func TestSessionStoreBackends(t *testing.T) {
	cfg := &config.Config{}
	cfg.Session.Backend = config.SessionBackendMemory
	a := &App{cfg: cfg}

	store, err := a.sessionStore(context.Background())
	if err != nil || store == nil {
		t.Fatalf("memory store: %v", err)
	}

	cfg.Session.Backend = config.SessionBackendPostgres
	if _, err := a.sessionStore(context.Background()); err == nil {
		t.Fatal("postgres backend without database should fail")
	}
}
