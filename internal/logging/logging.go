// Package logging builds the process logger from the session config.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"drop-analyzer/internal/config"
)

// Setup creates a zerolog logger according to the provided configuration.
// Logs go to stderr so exported data can be piped from stdout.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, error) {
	return New(cfg, os.Stderr)
}

// New creates a logger writing to w.
func New(cfg config.LoggingConfig, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	out := w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level), nil
}
