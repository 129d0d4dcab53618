// Package logging provides structured logging for the backend.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Logger wraps charmbracelet/log with per-component child loggers.
type Logger struct {
	*log.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string
	TimeFormat string
	Output     io.Writer
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
		Output:     os.Stderr,
	}
}

// New builds a Logger from cfg, falling back to defaults for unset fields.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.TimeOnly
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      tf,
	})
	l.SetLevel(parseLevel(cfg.Level))

	return &Logger{Logger: l}
}

func parseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Component returns a child logger tagged with name, used by the
// long-lived services that log (orchestrator, raid, market, ...) so log
// lines are attributable at a glance.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

var defaultLogger = New(DefaultConfig())

// Default returns the process-wide fallback logger, used only before
// SetDefault is called from main.
func Default() *Logger { return defaultLogger }

// SetDefault replaces the process-wide fallback logger.
func SetDefault(l *Logger) { defaultLogger = l }
