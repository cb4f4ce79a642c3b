// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sends human-readable logs to stderr.
func Init(debug bool) {
	InitWriter(debug, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// InitWriter installs w as the global log output. Pass a plain writer to get
// JSON lines.
func InitWriter(debug bool, w io.Writer) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "quorum").Logger()
}

// ForRun returns a child of the global logger tagged with the run id.
func ForRun(runID string) zerolog.Logger {
	return log.With().Str("run_id", runID).Logger()
}

// ForCandidate tags the run logger with a candidate id as well.
func ForCandidate(runID, candidateID string) zerolog.Logger {
	return ForRun(runID).With().Str("candidate_id", candidateID).Logger()
}
