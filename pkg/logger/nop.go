package logger

import (
	"context"
	"log/slog"
)

type nopHandler struct{}

// Nop returns a logger that discards every record.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
