package backend

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/logging"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.ListenAddr = "127.0.0.1:0"
	cfg.Discovery.ListenAddr = "127.0.0.1:0"
	cfg.MatchServer.SharedSecret = "test-secret"
	return cfg
}

func TestNewWiresAllServices(t *testing.T) {
	b := New(testConfig(), logging.Default(), nil)

	if b.Registry == nil || b.Orchestrator == nil || b.Friends == nil || b.Lobby == nil ||
		b.Inventory == nil || b.Raid == nil || b.Market == nil || b.Trader == nil || b.Discovery == nil {
		t.Fatalf("expected every service to be non-nil after New")
	}
}

func TestStartThenShutdown(t *testing.T) {
	// Discovery keeps the :0 from testConfig so the OS assigns it a free
	// port; HTTP gets a fixed port because the test dials /health on it.
	cfg := testConfig()
	cfg.HTTP.ListenAddr = "127.0.0.1:18881"

	b := New(cfg, logging.Default(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	resp, err := http.Get("http://127.0.0.1:18881/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
