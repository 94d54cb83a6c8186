// Package logging sets up the slog logger shared by the command and the
// libraries it drives. Text output is the default; JSON suits runs on a
// cluster whose log collector parses records.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

//Config configures the logger. The zero value logs Info and above as
//text to stderr.
type Config struct {
	Level   slog.Level
	JSON    bool
	Service string
	// Output defaults to os.Stderr.
	Output io.Writer
}

//ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

//ParseFormat reports whether format selects the JSON handler.
func ParseFormat(format string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return false, nil
	case "json":
		return true, nil
	}
	return false, fmt.Errorf("unknown log format %q", format)
}

//New builds a logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	return slog.New(handler)
}

//Setup builds a logger from level and format names and installs it as
//the slog default.
func Setup(level, format string, out io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	json, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	logger := New(Config{Level: lvl, JSON: json, Service: "gobeast", Output: out})
	slog.SetDefault(logger)
	return logger, nil
}
