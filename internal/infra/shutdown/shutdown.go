// Package shutdown provides ordered, time-bounded teardown.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Hook releases one resource during teardown.
type Hook func(context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Handler runs registered teardown hooks once, newest first, under a shared
// deadline.
type Handler struct {
	timeout time.Duration
	hooks   []namedHook
	mu      sync.Mutex
	once    sync.Once
	err     error
	done    chan struct{}
}

// NewHandler creates a handler whose hooks share a budget of timeout.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{
		timeout: timeout,
		hooks:   make([]namedHook, 0),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a hook under name.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(name string, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: hook})
}

// Shutdown runs every hook and returns their joined errors. Hooks keep
// running after one fails. Only the first call does any work; later calls
// return the same result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := make([]namedHook, len(h.hooks))
		copy(hooks, h.hooks)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(ctx); err != nil {
				errs = append(errs, &HookError{Name: hooks[i].name, Err: err})
			}
		}
		h.err = errors.Join(errs...)
		close(h.done)
	})
	<-h.done
	return h.err
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// HookError records which hook failed.
type HookError struct {
	Name string
	Err  error
}

func (e *HookError) Error() string {
	return "shutdown " + e.Name + ": " + e.Err.Error()
}

func (e *HookError) Unwrap() error {
	return e.Err
}
