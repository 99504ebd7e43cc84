// Package telemetry wires structured logging and OpenTelemetry
// tracing/metrics for the scheduler's named flow.* instruments. None of
// it is semantically load-bearing: the processor in internal/dag runs
// identically with telemetry disabled.
package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// InitLogger configures the global slog logger. level and json give the
// configured defaults; UNSHACLED_LOG_LEVEL (debug/info/warn/error) and
// UNSHACLED_JSON_LOG (1/true/json) override them when set.
func InitLogger(service, level string, json bool) *slog.Logger {
	if env := strings.ToLower(os.Getenv("UNSHACLED_JSON_LOG")); env != "" {
		json = env == "1" || env == "true" || env == "json"
	}
	if env := os.Getenv("UNSHACLED_LOG_LEVEL"); env != "" {
		level = env
	}
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", json, "level", level)
	return logger
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
