package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is a slog level; the aliases keep callers off log/slog imports.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler used for Output.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config describes the operational logger of a mockenv process.
type Config struct {
	Level     Level
	Format    Format
	AddSource bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Mirror receives every record as JSON alongside Output. The CLI
	// points it at --log-file.
	Mirror io.Writer
}

// DefaultConfig returns the logging defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// New builds the logger described by cfg.
func New(cfg Config) *slog.Logger {
	return slog.New(newHandler(cfg))
}

func newHandler(cfg Config) slog.Handler {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	default:
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	if cfg.Mirror != nil {
		handler = Tee(handler, slog.NewJSONHandler(cfg.Mirror, opts))
	}
	return handler
}

// Nop returns a logger that drops everything. Packages default to it
// when no logger is configured.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component returns log tagged with the component name, or a no-op logger
// when log is nil.
func Component(log *slog.Logger, name string) *slog.Logger {
	if log == nil {
		return Nop()
	}
	return log.With("component", name)
}

// ParseLevel maps a --log-level value to a Level. Unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat maps a --log-format value to a Format, text unless "json".
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatText
}
