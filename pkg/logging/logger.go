// Package logging provides structured logging configuration using zerolog.
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

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
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

// levels maps accepted level names, aliases included, to zerolog levels.
var levels = map[string]struct {
	name  LogLevel
	level zerolog.Level
}{
	"debug":    {LevelDebug, zerolog.DebugLevel},
	"info":     {LevelInfo, zerolog.InfoLevel},
	"":         {LevelInfo, zerolog.InfoLevel},
	"warn":     {LevelWarn, zerolog.WarnLevel},
	"warning":  {LevelWarn, zerolog.WarnLevel},
	"error":    {LevelError, zerolog.ErrorLevel},
	"disabled": {LevelDisabled, zerolog.Disabled},
	"off":      {LevelDisabled, zerolog.Disabled},
}

// Setup configures the global zerolog logger. Unknown levels log at info.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.zerolog())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05.000"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel validates a level name coming from flags or the environment.
func ParseLevel(s string) (LogLevel, error) {
	l, ok := levels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return l.name, nil
}

func (l LogLevel) zerolog() zerolog.Level {
	if v, ok := levels[strings.ToLower(string(l))]; ok {
		return v.level
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRequest tags a logger with the id of the request that started a run.
func WithRequest(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page accumulation (page number, frames, next targets)
//   - Cache lookups (hit/miss, layer, planned sections)
//   - Run completion (outcome, pages, duration)
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Cache writes of completed runs
//
// Warn: Warning conditions that don't prevent operation
//   - Backend-signaled Error responses
//   - Page fetch failures and retry attempts
//   - Cache errors (fallback to fetching everything)
//
// Error: Error conditions requiring attention
//   - Schema mismatches while merging pages
//   - Retries exhausted
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package (pagination, cache, client, datasource, proxy)
//   - request_id: id of the request that started the run
//   - page: 1-based page number within a run
//   - ref_id: target refId
//   - frames: number of frames in a page
//   - next_targets: targets continued with a cursor
//   - duration: fetch or run duration
//   - error_class: transport error classification (client, server, rate_limit, network)
//   - layer: cache layer (memory, redis)
