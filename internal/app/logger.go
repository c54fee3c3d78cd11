package app

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger. LOG_FORMAT=json selects JSON output; any other value
// selects text. Every record carries the service name and environment.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: parseLevel(cfg)}
	var handler slog.Handler
	if cfg != nil && strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	env := "development"
	if cfg != nil && cfg.AppEnv != "" {
		env = cfg.AppEnv
	}
	return slog.New(handler).With(slog.String("service", "firmdesk"), slog.String("env", env))
}

// parseLevel falls back to info for an empty or unknown LOG_LEVEL.
func parseLevel(cfg *Config) slog.Level {
	level := slog.LevelInfo
	if cfg == nil || cfg.LogLevel == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
