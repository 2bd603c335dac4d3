// Package logger wires up the process-wide zerolog logger (SPEC_FULL.md
// ambient stack: zerolog is canonical, matching the teacher's root-level
// factory.go/node_executors.go usage, not the log/slog variant that had
// drifted into this file).
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger at the given level and returns
// it for callers that want a handle instead of using the package-level
// log.Logger.
func Setup(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	l := parseLevel(level)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(l)
	log.Logger = logger
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
