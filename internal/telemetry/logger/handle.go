package logger

import (
	"log/slog"
	"slices"
	"sync"
)

// Handle is a Logger whose destination can be replaced while in use.
// Loggers derived with With follow every later Set.
type Handle struct {
	mu sync.RWMutex
	l  Logger
}

// NewHandle returns a handle logging to l, or discarding when l is nil.
func NewHandle(l Logger) *Handle {
	if l == nil {
		l = Nop()
	}
	return &Handle{l: l}
}

// Set replaces the destination. It returns once no record is being written
// to the previous one.
func (h *Handle) Set(l Logger) {
	if l == nil {
		l = Nop()
	}
	h.mu.Lock()
	h.l = l
	h.mu.Unlock()
}

func (h *Handle) log(args []any, fn func(Logger)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	l := h.l
	if len(args) > 0 {
		l = l.With(args...)
	}
	fn(l)
}

func (h *Handle) Debug(msg string, args ...any) {
	h.log(nil, func(l Logger) { l.Debug(msg, args...) })
}

func (h *Handle) Info(msg string, args ...any) {
	h.log(nil, func(l Logger) { l.Info(msg, args...) })
}

func (h *Handle) Warn(msg string, args ...any) {
	h.log(nil, func(l Logger) { l.Warn(msg, args...) })
}

func (h *Handle) Error(msg string, args ...any) {
	h.log(nil, func(l Logger) { l.Error(msg, args...) })
}

func (h *Handle) With(args ...any) Logger {
	return &handleChild{h: h, args: args}
}

// Slog returns the current destination's slog.Logger. It does not follow a
// later Set.
func (h *Handle) Slog() *slog.Logger {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.l.Slog()
}

type handleChild struct {
	h    *Handle
	args []any
}

func (c *handleChild) Debug(msg string, args ...any) {
	c.h.log(c.args, func(l Logger) { l.Debug(msg, args...) })
}

func (c *handleChild) Info(msg string, args ...any) {
	c.h.log(c.args, func(l Logger) { l.Info(msg, args...) })
}

func (c *handleChild) Warn(msg string, args ...any) {
	c.h.log(c.args, func(l Logger) { l.Warn(msg, args...) })
}

func (c *handleChild) Error(msg string, args ...any) {
	c.h.log(c.args, func(l Logger) { l.Error(msg, args...) })
}

func (c *handleChild) With(args ...any) Logger {
	return &handleChild{h: c.h, args: append(slices.Clip(c.args), args...)}
}

func (c *handleChild) Slog() *slog.Logger {
	return c.h.Slog().With(c.args...)
}
