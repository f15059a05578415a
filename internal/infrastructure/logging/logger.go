package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/shelly-fleet-core/internal/infrastructure/config"
)

// serviceName is the default service attribute stamped on every entry.
const serviceName = "shellyfleet"

// levelNames maps config level strings to slog levels. Unknown names fall
// back to info so a typo in config.yaml never silences the fleet.
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is the fleet core's structured logger.
//
// It embeds slog.Logger, so the usual Info/Warn/Error key-value calls work
// directly. Subsystems derive their own logger via Component, which tags
// every entry with component=<name>; per-device log lines add the MAC via
// Device. Both conventions keep group-run output greppable when sixteen
// devices log at once.
//
// Thread Safety: safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml and stamps
// the service name and build version on every entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	base := slog.New(newHandler(cfg)).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)
	return &Logger{Logger: base}
}

// newHandler resolves the configured output, format and level into a slog
// handler. JSON is the default format; text is for development terminals.
func newHandler(cfg config.LoggingConfig) slog.Handler {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// ParseLevel converts a config level string to a slog.Level, defaulting to
// info for unknown or empty values.
func ParseLevel(name string) slog.Level {
	if level, ok := levelNames[strings.ToLower(name)]; ok {
		return level
	}
	return slog.LevelInfo
}

// Component derives a subsystem logger:
//
//	probeLog := log.Component("discovery")
//	probeLog.Info("scan started", "networks", networks)
//
// Every entry carries component=discovery.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name))}
}

// Device derives a per-device logger tagged with the device MAC.
func (l *Logger) Device(mac string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("mac", mac))}
}

// With returns a Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the early-startup logger used before config is loaded:
// JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{}, "dev")
}
