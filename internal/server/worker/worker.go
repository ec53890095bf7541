// Package worker implements request-servicing workers and the worker pool.
package worker

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/yndnr/forkhttpd/internal/server/handoff"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
	"github.com/yndnr/forkhttpd/internal/telemetry/metric"
)

var (
	// ErrKilled is the exit cause of a worker ended by Kill.
	ErrKilled = errors.New("worker: killed")
	// ErrPanicked wraps a panic that escaped the request handler.
	ErrPanicked = errors.New("worker: panic")
)

// Handler services one connection: it reads one request and writes one
// response. The worker closes the connection after ServeConn returns.
type Handler interface {
	ServeConn(c net.Conn) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(c net.Conn) error

// ServeConn calls f(c).
func (f HandlerFunc) ServeConn(c net.Conn) error {
	return f(c)
}

// Worker receives connections from one handoff endpoint and services them
// one at a time.
type Worker struct {
	slot     int
	endpoint *handoff.Endpoint
	handler  Handler
	logger   logger.Logger
	metrics  *metric.Registry

	stopping atomic.Bool
	killed   atomic.Bool
	served   atomic.Uint64

	done chan struct{}
	err  error
}

func newWorker(slot int, endpoint *handoff.Endpoint, handler Handler, log logger.Logger, metrics *metric.Registry) *Worker {
	return &Worker{
		slot:     slot,
		endpoint: endpoint,
		handler:  handler,
		logger:   log.With("slot", slot),
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

// Slot returns the slot the worker occupies.
func (w *Worker) Slot() int {
	return w.slot
}

// Served returns the number of connections this worker has serviced.
func (w *Worker) Served() uint64 {
	return w.served.Load()
}

// Done is closed once the worker loop has ended.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns why the worker ended. Valid after Done is closed; nil for a
// requested stop.
func (w *Worker) Err() error {
	return w.err
}

// Stop asks the worker to end after its in-flight connection, if any.
func (w *Worker) Stop() {
	w.stopping.Store(true)
	w.endpoint.Interrupt()
}

// Kill ends the worker as if it had crashed.
func (w *Worker) Kill() {
	w.killed.Store(true)
	w.endpoint.Interrupt()
}

// stopped reports whether the worker ended because it was asked to stop.
func (w *Worker) stopped() bool {
	return w.stopping.Load() && !w.killed.Load()
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.endpoint.Close()

	w.err = w.loop()
	if w.err != nil && !w.stopped() {
		w.logger.Warn("worker exited", "error", w.err, "served", w.Served())
		return
	}
	w.logger.Debug("worker stopped", "served", w.Served())
}

func (w *Worker) loop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()

	for {
		if w.killed.Load() {
			return ErrKilled
		}
		if w.stopping.Load() {
			return nil
		}

		msg, err := w.endpoint.Receive()
		switch {
		case err == nil:
		case errors.Is(err, handoff.ErrInterrupted):
			continue
		case errors.Is(err, handoff.ErrBadDescriptor):
			w.logger.Warn("skipping handoff with unusable descriptor", "tag", string(msg.Tag), "error", err)
			continue
		default:
			return err
		}

		if msg.Conn == nil {
			w.logger.Debug("handoff without descriptor", "tag", string(msg.Tag))
			continue
		}
		w.serve(msg.Conn)
	}
}

func (w *Worker) serve(c net.Conn) {
	start := time.Now()
	w.metrics.ConnectionStarted()
	defer func() {
		c.Close()
		w.metrics.ConnectionDone(time.Since(start))
		w.served.Add(1)
	}()

	if err := w.handler.ServeConn(c); err != nil {
		w.logger.Debug("connection ended with error",
			"remote", c.RemoteAddr().String(),
			"error", err)
	}
}
