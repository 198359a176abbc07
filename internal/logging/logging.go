// Package logging builds the service's zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error. Empty means info.
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	// Format is json or console. Empty means json.
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	// Caller adds file and line to every entry.
	Caller bool `koanf:"caller"`
	// Output defaults to os.Stderr.
	Output io.Writer `koanf:"-"`
}

// New returns a logger for cfg.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.Format)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp().Str("service", "goguard")
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}
