// Package logging configures zerolog for the leader tools.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const EnvLogLevel = "CRUMBS_LOG_LEVEL"

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config selects level and output format.
type Config struct {
	Level  string
	Format string
	Out    io.Writer // Defaults to os.Stderr
}

// New builds a logger tagged with the application name. The CRUMBS_LOG_LEVEL
// environment variable overrides cfg.Level when it holds a known level.
func New(app string, cfg Config) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if strings.ToLower(strings.TrimSpace(cfg.Format)) != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}
	if envLevel, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = envLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
}

// ParseLevel maps a level name to a zerolog level. The second result is
// false for empty or unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}
