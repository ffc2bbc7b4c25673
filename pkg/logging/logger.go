// Package logging configures structured logging with zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name, e.g. from a command-line flag.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// zerologLevel converts a LogLevel. Unknown levels mean info.
func zerologLevel(level LogLevel) zerolog.Level {
	name, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(string(name))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Conditional requests and ETags
//   - Loader triggers that were ignored, pages appended
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Export progress and completion
//   - Access log lines (one per request)
//
// Warn: Warning conditions that don't prevent operation
//   - Failed loader fetches (the list stays as it was)
//   - Retry attempts, upstream back-off (429)
//   - Cache errors (fallback to direct request)
//   - Category probe failures (chip kept)
//
// Error: Error conditions requiring attention
//   - Listing requests failing after retries
//   - Redis unavailable at startup
//   - Configuration errors
//
// Context Fields:
//   - component: package emitting the line (catalog-client, loader, web, ...)
//   - endpoint: listing API path
//   - offset, limit: requested window
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network, decode
//   - view_id: infinite-scroll view
//   - request_id: web request id
