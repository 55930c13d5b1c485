package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger from configuration. "json" emits
// structured records with source locations for log scraping, "text" is the
// same in logfmt, and the default "pretty" format is a terse debug-level text
// handler for local development.
func NewLogger(cfg *Config) *slog.Logger {
	format := "pretty"
	if cfg != nil && cfg.LogFormat != "" {
		format = cfg.LogFormat
	}
	return slog.New(newLogHandler(os.Stdout, format))
}

func newLogHandler(w io.Writer, format string) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true})
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{AddSource: true})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
}
