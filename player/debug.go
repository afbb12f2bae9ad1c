package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// colorHandler is a slog handler that writes severity-colored lines to
// stderr and, when configured, mirrors them uncolored into a logfile.
type colorHandler struct {
	mu    *sync.Mutex
	out   io.Writer
	file  io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newColorHandler(debug bool, logfile string) (*colorHandler, error) {
	h := &colorHandler{
		mu:    &sync.Mutex{},
		out:   os.Stderr,
		level: slog.LevelInfo,
	}
	if debug {
		h.level = slog.LevelDebug
	}
	if logfile != "" {
		f, err := os.OpenFile(logfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening logfile: %w", err)
		}
		h.file = f
	}
	return h, nil
}

var (
	debugColor = color.New(color.Faint).SprintFunc()
	infoColor  = color.New(color.FgGreen).SprintFunc()
	warnColor  = color.New(color.FgYellow).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
)

func severity(level slog.Level) (string, func(...interface{}) string) {
	switch {
	case level >= slog.LevelError:
		return "[ERROR]", errorColor
	case level >= slog.LevelWarn:
		return "[WARN]", warnColor
	case level >= slog.LevelInfo:
		return "[INFO]", infoColor
	default:
		return "[DEBUG]", debugColor
	}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	appendAttr := func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	r.Attrs(appendAttr)

	prefix, colorize := severity(r.Level)
	line := fmt.Sprintf("%s %s", prefix, sb.String())

	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintln(h.out, colorize(line))
	if h.file != nil {
		fmt.Fprintf(h.file, "%s %s\n", r.Time.Format("2006-01-02 15:04:05.000"), line)
	}
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

func (h *colorHandler) WithGroup(string) slog.Handler {
	return h
}
