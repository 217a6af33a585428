package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Options configures the process logger.
type Options struct {
	Level string
	JSON  bool
	// Role is stamped on every record: "producer" or "consumer".
	Role string
	// Output defaults to stderr.
	Output io.Writer
}

var (
	level = new(slog.LevelVar)
	root  atomic.Pointer[slog.Logger]
)

func init() {
	root.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// Configure swaps the process logger. Loggers already derived with For keep
// writing to the previous handler, so call it before the loops start.
func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(out, hopts)
	if opts.JSON {
		h = slog.NewJSONHandler(out, hopts)
	}
	l := slog.New(h)
	if opts.Role != "" {
		l = l.With("role", opts.Role)
	}
	root.Store(l)

	if err := SetLevel(opts.Level); err != nil {
		l.Warn("falling back to info", "err", err)
	}
}

// SetLevel changes the threshold of every logger handed out so far.
func SetLevel(s string) error {
	lvl, err := parseLevel(s)
	level.Set(lvl)
	return err
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func L() *slog.Logger {
	return root.Load()
}

// For tags the process logger with the component emitting the record.
func For(component string) *slog.Logger {
	return L().With("component", component)
}

// FromEnv overlays PLAYRELAY_LOG_LEVEL and PLAYRELAY_LOG_JSON on opts.
func FromEnv(opts Options) Options {
	if lvl := os.Getenv("PLAYRELAY_LOG_LEVEL"); lvl != "" {
		opts.Level = lvl
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("PLAYRELAY_LOG_JSON"))); err == nil {
		opts.JSON = b
	}
	return opts
}
