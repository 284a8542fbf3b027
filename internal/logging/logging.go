// Package logging holds the process-wide slog logger. Call L() at each log
// site; Configure may replace the logger at any time.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level string // debug, info, warn or error; anything else is info
	JSON  bool
}

var def atomic.Value // *slog.Logger

func init() {
	cfg := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := slog.NewTextHandler(os.Stderr, cfg)
	def.Store(slog.New(h))
}

// Configure swaps the logger for one writing to stderr.
func Configure(opts Options) {
	ConfigureTo(os.Stderr, opts)
}

// ConfigureTo is Configure with an explicit destination.
func ConfigureTo(w io.Writer, opts Options) {
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	def.Store(slog.New(h))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func L() *slog.Logger {
	// never nil: init stores a text logger
	l, _ := def.Load().(*slog.Logger)
	return l
}

// InitFromEnv configures from FLUME_LOG_LEVEL and FLUME_LOG_JSON. An
// unparsable FLUME_LOG_JSON means text output.
func InitFromEnv() {
	lvl := os.Getenv("FLUME_LOG_LEVEL")
	json := false
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("FLUME_LOG_JSON"))); err == nil {
		json = b
	}
	Configure(Options{Level: lvl, JSON: json})
}
