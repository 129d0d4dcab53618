// Package backend wires every control-plane component (C1-C11) into one
// process, grounded on klingond's cmd-level construction order: storage
// first, dependent services next, listeners last, each guarded so a
// failure during Start unwinds what already came up.
package backend

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/api"
	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/discovery"
	"github.com/The404Studios/zsdu-backend/internal/friends"
	"github.com/The404Studios/zsdu-backend/internal/inventory"
	"github.com/The404Studios/zsdu-backend/internal/lobby"
	"github.com/The404Studios/zsdu-backend/internal/logging"
	"github.com/The404Studios/zsdu-backend/internal/market"
	"github.com/The404Studios/zsdu-backend/internal/orchestrator"
	"github.com/The404Studios/zsdu-backend/internal/ports"
	"github.com/The404Studios/zsdu-backend/internal/raid"
	"github.com/The404Studios/zsdu-backend/internal/registry"
	"github.com/The404Studios/zsdu-backend/internal/trader"
)

// Backend owns every service and the two listeners (HTTP + discovery TCP)
// exposing them.
type Backend struct {
	cfg *config.Config
	log *logging.Logger

	Registry   *registry.Registry
	Pool       *ports.Pool
	Orchestrator *orchestrator.Orchestrator
	Friends    *friends.Directory
	Lobby      *lobby.Service
	Catalog    *inventory.Catalog
	Inventory  *inventory.Service
	Raid       *raid.Service
	Market     *market.Service
	Trader     *trader.Service
	Discovery  *discovery.Registry

	httpServer *http.Server
	discListener net.Listener

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs every service, wiring the Raid/Market/Trader -> Inventory
// dependency direction (spec's "calls into Inventory, never the reverse").
func New(cfg *config.Config, log *logging.Logger, traders []*trader.Trader) *Backend {
	reg := registry.New(log)
	pool := ports.New(cfg.Pool.BasePort, cfg.Pool.MaxPorts)
	orch := orchestrator.New(reg, pool, orchestrator.Config{
		MatchServer: cfg.MatchServer,
		MinReady:    cfg.Pool.MinReady,
	}, log)

	fr := friends.New()
	lob := lobby.New()
	catalog := inventory.NewCatalog()
	inv := inventory.New(catalog, log)
	raids := raid.New(inv, cfg.MatchServer.SharedSecret, log)
	mkt := market.New(inv, log)
	trd := trader.New(inv, catalog, traders, log)
	discReg := discovery.NewRegistry()

	return &Backend{
		cfg: cfg, log: log.Component("backend"),
		Registry: reg, Pool: pool, Orchestrator: orch,
		Friends: fr, Lobby: lob, Catalog: catalog, Inventory: inv,
		Raid: raids, Market: mkt, Trader: trd, Discovery: discReg,
	}
}

// Start launches the orchestrator loop and both listeners.
func (b *Backend) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	b.Orchestrator.Start(ctx)

	apiServer := api.New(b.Registry, b.Orchestrator, b.Friends, b.Lobby, b.Inventory, b.Raid, b.Market, b.Trader, b.log)
	b.httpServer = &http.Server{Addr: b.cfg.HTTP.ListenAddr, Handler: apiServer}

	discServer := discovery.NewServer(b.Discovery, b.log)
	ln, err := net.Listen("tcp", b.cfg.Discovery.ListenAddr)
	if err != nil {
		cancel()
		return fmt.Errorf("backend: discovery listen: %w", err)
	}
	b.discListener = ln

	go discServer.Serve(ctx, ln)

	go func() {
		defer close(b.done)
		b.log.Info("http listening", "addr", b.cfg.HTTP.ListenAddr)
		if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Error("http server exited", "error", err)
		}
	}()

	go b.janitor(ctx)

	return nil
}

// janitor periodically sweeps idempotency caches and stale lobbies/market
// listings/raids, the same "tick and sweep" shape as the orchestrator.
func (b *Backend) janitor(ctx context.Context) {
	ticker := time.NewTicker(config.OrchestratorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Inventory.EvictExpiredOps()
			b.Lobby.CleanupStale()
			b.Market.ExpireStale()
			if n := b.Raid.CleanupExpired(); n > 0 {
				b.log.Info("expired raids cleaned up", "count", n)
			}
		}
	}
}

// Shutdown stops the listeners and orchestrator, waiting up to
// config.GracefulShutdownWait for the HTTP server to drain.
func (b *Backend) Shutdown(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.discListener != nil {
		b.discListener.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, config.GracefulShutdownWait)
	defer shutdownCancel()

	var err error
	if b.httpServer != nil {
		err = b.httpServer.Shutdown(shutdownCtx)
	}
	if b.done != nil {
		<-b.done
	}
	b.Orchestrator.Shutdown()
	return err
}
