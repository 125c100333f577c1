package obs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(cfg LogConfig) *log.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = log.InfoLevel
	}
	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}
	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		opts.Formatter = log.JSONFormatter
	default:
		opts.Formatter = log.TextFormatter
	}
	return log.NewWithOptions(out, opts)
}

// Discard returns a logger that writes nowhere, for tests and nil configs.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *log.Logger) *log.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

func LogAccess(logger *log.Logger, ctx RequestContext) {
	if logger == nil {
		return
	}
	logger.Info("access",
		"request_id", defaultString(ctx.RequestID, "none"),
		"method", ctx.Method,
		"path", ctx.Path,
		"route", defaultString(ctx.Route, "none"),
		"principal", defaultString(ctx.Principal, "anonymous"),
		"status", ctx.Status,
		"duration_ms", ctx.Duration.Milliseconds(),
		"bytes_out", ctx.BytesOut,
		"cache", defaultString(ctx.CacheStatus, "bypass"),
		"user_agent", ctx.UserAgent,
		"remote_addr", ctx.RemoteAddr,
	)
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func RedactHeaderValue(name, value string) string {
	if name == "" {
		return value
	}
	if isSensitiveHeader(name) {
		return "[redacted]"
	}
	return value
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "cookie", "set-cookie", "x-api-key":
		return true
	default:
		return false
	}
}
