// Package logtrace provides logging and tracing utilities for the application.
// It integrates with zerolog for structured logging and carries a request id
// through contexts so every line of one logical call can be correlated.
package logtrace

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls the global logger.
type Config struct {
	Level  string    // debug, info, warn, error; defaults to info
	Pretty bool      // human readable console output
	Out    io.Writer // defaults to stderr
}

// InitLogger initializes the global logger from cfg.
func InitLogger(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
