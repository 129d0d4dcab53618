// Command backend runs the survival-shooter control plane: the HTTP API,
// the discovery TCP listener, the match-server orchestrator, and the
// housekeeping sweeps for idempotency caches, lobbies, and raids.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/The404Studios/zsdu-backend/internal/backend"
	"github.com/The404Studios/zsdu-backend/internal/config"
	"github.com/The404Studios/zsdu-backend/internal/logging"
	"github.com/The404Studios/zsdu-backend/internal/trader"
)

var (
	version = "0.1.0-dev"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Config file path (YAML)")
		envFile     = flag.String("env", ".env", "Env file to load secrets from (optional)")
		logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(logging.DefaultConfig())
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("backend %s", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	b := backend.New(cfg, log, defaultTraders())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		log.Fatal("failed to start backend", "error", err)
	}

	log.Info("backend started",
		"http", cfg.HTTP.ListenAddr,
		"discovery", cfg.Discovery.ListenAddr,
	)

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GracefulShutdownWait+time.Second)
	defer cancel()
	if err := b.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}

	log.Info("goodbye")
}

// defaultTraders seeds the one quartermaster NPC the repo ships with.
// Operators that need more can extend this before the traders package
// grows a config-driven loader.
func defaultTraders() []*trader.Trader {
	return []*trader.Trader{
		{
			ID:   "quartermaster",
			Name: "Quartermaster",
			Offers: map[string]*trader.Offer{
				"offer-bandage": {ID: "offer-bandage", DefinitionID: "bandage", BasePrice: 10, DefaultStock: -1, RemainingStock: -1},
				"offer-ammo":    {ID: "offer-ammo", DefinitionID: "ammo_9mm", BasePrice: 2, DefaultStock: -1, RemainingStock: -1},
				"offer-pistol":  {ID: "offer-pistol", DefinitionID: "pistol_9mm", BasePrice: 150, DefaultStock: 3, RemainingStock: 3},
				"offer-rifle":   {ID: "offer-rifle", DefinitionID: "rifle_ak", BasePrice: 800, DefaultStock: 1, RemainingStock: 1},
				"offer-armor":   {ID: "offer-armor", DefinitionID: "armor_light", BasePrice: 400, DefaultStock: 2, RemainingStock: 2},
			},
		},
	}
}
