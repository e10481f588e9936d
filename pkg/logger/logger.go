// Package logger builds the slog loggers used across textgen: plain text for
// local runs, JSON for services, and a charmbracelet/log handler for pretty
// CLI output.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level    slog.Level
	levelVar *slog.LevelVar
	pretty   bool
	json     bool
	source   bool
	writers  []io.Writer
}

// New creates a *slog.Logger from the given options. Defaults to an
// Info-level text handler on os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	var leveler slog.Leveler = c.level
	if c.levelVar != nil {
		c.levelVar.Set(c.level)
		leveler = c.levelVar
	}

	var handler slog.Handler
	switch {
	case c.pretty:
		// charm's level is fixed at construction, so it logs everything and
		// the leveler filters in front of it.
		handler = &levelHandler{
			leveler: leveler,
			handler: charmlog.NewWithOptions(w, charmlog.Options{
				ReportTimestamp: true,
				ReportCaller:    c.source,
				Level:           charmlog.DebugLevel,
			}),
		}
	case c.json:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     leveler,
			AddSource: c.source,
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     leveler,
			AddSource: c.source,
		})
	}

	return slog.New(handler)
}

// levelHandler gates a handler behind a dynamic leveler.
type levelHandler struct {
	leveler slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.leveler.Level() && h.handler.Enabled(ctx, level)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{leveler: h.leveler, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{leveler: h.leveler, handler: h.handler.WithGroup(name)}
}
