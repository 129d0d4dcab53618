package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/logging"
	"github.com/The404Studios/zsdu-backend/internal/ports"
	"github.com/The404Studios/zsdu-backend/internal/registry"
)

func newTestOrchestrator(minReady int) *Orchestrator {
	reg := registry.New(logging.Default())
	pool := ports.New(31000, 10)
	cfg := Config{
		MatchServer: config.MatchServerConfig{
			// /bin/sh rejects the --headless flag it is launched with and
			// exits at once with a non-zero code, which is exactly the
			// exit-sweep behavior these tests exercise.
			Executable:  "/bin/sh",
			BackendHost: "127.0.0.1",
			BackendPort: 8080,
		},
		MinReady: minReady,
	}
	return New(reg, pool, cfg, logging.Default())
}

func TestSpawnServerRegistersStartingEntry(t *testing.T) {
	o := newTestOrchestrator(1)
	ctx := context.Background()

	if err := o.spawnServer(ctx); err != nil {
		t.Fatalf("spawnServer: %v", err)
	}

	servers := o.reg.ListServers()
	if len(servers) != 1 {
		t.Fatalf("len(servers) = %d, want 1", len(servers))
	}
	if servers[0].Status != registry.ServerStarting {
		t.Fatalf("Status = %v, want Starting", servers[0].Status)
	}
	if o.pool.InUseCount() != 1 {
		t.Fatalf("InUseCount() = %d, want 1", o.pool.InUseCount())
	}
}

func TestExitSweepReapsExitedProcess(t *testing.T) {
	o := newTestOrchestrator(1)
	ctx := context.Background()

	if err := o.spawnServer(ctx); err != nil {
		t.Fatalf("spawnServer: %v", err)
	}

	// Give the child a moment to exit — /bin/sh given --headless exits
	// almost immediately with a non-zero code.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		o.exitSweep()
		if len(o.reg.ListServers()) == 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if servers := o.reg.ListServers(); len(servers) != 0 {
		t.Fatalf("exitSweep did not reap exited process, servers = %v", servers)
	}
	if o.pool.InUseCount() != 0 {
		t.Fatalf("port not released after exit sweep")
	}
}

func TestTerminateServerEndsMatchAndReleasesPort(t *testing.T) {
	o := newTestOrchestrator(0)
	reg := o.reg

	port, err := o.pool.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	reg.RegisterServer("s1", port, 8, nil)
	reg.MarkReady("s1", port, 8)
	m, err := reg.CreateMatch("m1", "s1", "survival")
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	reg.AddPlayer(m.ID, "p1")

	o.TerminateServer("s1", "test_reason")

	if reg.GetServer("s1") != nil {
		t.Fatalf("server still registered after TerminateServer")
	}
	got := reg.GetMatch("m1")
	if got == nil || got.Status != registry.MatchEnded {
		t.Fatalf("match not ended by TerminateServer: %+v", got)
	}
	if got.EndReason != "test_reason" {
		t.Fatalf("EndReason = %q, want test_reason", got.EndReason)
	}
	if o.pool.InUseCount() != 0 {
		t.Fatalf("port not released after TerminateServer")
	}
}
