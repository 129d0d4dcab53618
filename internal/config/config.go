// Package config provides centralized configuration for the backend.
// Timing constants that the spec locks (heartbeat, raid timeouts, invite
// TTL) are NOT configurable — they are compile-time constants declared at
// the bottom of this file, per spec §5's "these constants are locked and
// must not drift."
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root backend configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	MatchServer MatchServerConfig `yaml:"match_server"`
	Pool       PoolConfig       `yaml:"pool"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HTTPConfig configures the REST API listener.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DiscoveryConfig configures the framed TCP listener.
type DiscoveryConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MatchServerConfig configures how child match-server processes are spawned.
type MatchServerConfig struct {
	Executable  string `yaml:"executable"`
	ProjectPath string `yaml:"project_path"`
	BackendHost string `yaml:"backend_host"`
	BackendPort int    `yaml:"backend_port"`
	// SharedSecret authenticates server→backend calls (raid start/commit)
	// and signs raid commit envelopes. Never stored in the YAML file —
	// always sourced from the environment, see Load.
	SharedSecret string `yaml:"-"`
}

// PoolConfig configures the port pool and orchestrator minimum pool.
type PoolConfig struct {
	BasePort   int `yaml:"base_port"`
	MaxPorts   int `yaml:"max_ports"`
	MinReady   int `yaml:"min_ready"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration sufficient to run locally with zero
// external configuration, mirroring the teacher's lazily-initialized
// GetMatchConfig/GetLootboxConfig defaults.
func Default() *Config {
	return &Config{
		HTTP:      HTTPConfig{ListenAddr: ":8080"},
		Discovery: DiscoveryConfig{ListenAddr: ":7777"},
		MatchServer: MatchServerConfig{
			Executable:   "./matchserver",
			BackendHost:  "127.0.0.1",
			BackendPort:  8080,
			SharedSecret: "dev-insecure-shared-secret",
		},
		Pool: PoolConfig{
			BasePort: 27015,
			MaxPorts: 64,
			MinReady: 1,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads an optional YAML file at path (skipped if it doesn't exist),
// overlays a .env file (if present) and process environment variables,
// and returns the merged config starting from Default().
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// godotenv.Load's error (e.g. envFile absent) is ignored; it only
	// populates process env, never overwrites existing keys.
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	applyEnvOverrides(cfg)

	if cfg.MatchServer.SharedSecret == "" {
		return nil, fmt.Errorf("config: MATCH_SERVER_SECRET must be set")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("DISCOVERY_LISTEN_ADDR"); v != "" {
		cfg.Discovery.ListenAddr = v
	}
	if v := os.Getenv("MATCH_SERVER_EXECUTABLE"); v != "" {
		cfg.MatchServer.Executable = v
	}
	if v := os.Getenv("MATCH_SERVER_PROJECT_PATH"); v != "" {
		cfg.MatchServer.ProjectPath = v
	}
	if v := os.Getenv("BACKEND_CALLBACK_HOST"); v != "" {
		cfg.MatchServer.BackendHost = v
	}
	if v := os.Getenv("BACKEND_CALLBACK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MatchServer.BackendPort = n
		}
	}
	if v := os.Getenv("MATCH_SERVER_SECRET"); v != "" {
		cfg.MatchServer.SharedSecret = v
	}
	if v := os.Getenv("PORT_POOL_BASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.BasePort = n
		}
	}
	if v := os.Getenv("PORT_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxPorts = n
		}
	}
	if v := os.Getenv("MIN_READY_SERVERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MinReady = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Locked timing constants (spec §5). Kept here, centrally, so every
// consumer references one name instead of a scattered literal — but the
// values themselves are not configurable.
const (
	HeartbeatInterval      = 2 * time.Second
	HeartbeatTimeout       = 6 * time.Second
	OrchestratorTick       = 5 * time.Second
	RaidPrepareTimeout     = 10 * time.Minute
	RaidActiveTimeout      = 2 * time.Hour
	InviteTTL              = 5 * time.Minute
	LobbyIdleTTL           = 1 * time.Hour
	MatchSpawnWaitTimeout  = 30 * time.Second
	MatchSpawnPollInterval = 1 * time.Second
	GracefulShutdownWait   = 5 * time.Second
	IdempotencyCacheTTL    = 24 * time.Hour
)
