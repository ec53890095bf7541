// Package worker implements request-servicing workers and the worker pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yndnr/forkhttpd/internal/server/handoff"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
	"github.com/yndnr/forkhttpd/internal/telemetry/metric"
)

// DefaultSize is the default number of worker slots.
const DefaultSize = 4

var (
	// ErrSlotBusy is returned by Respawn when the slot's worker is alive.
	ErrSlotBusy = errors.New("worker: slot still has a live worker")
	// ErrNoSlot is returned for a slot id outside the pool.
	ErrNoSlot = errors.New("worker: no such slot")
)

// Exit reports a worker that ended without being asked to stop.
type Exit struct {
	Slot int
	Err  error
}

// SlotInfo is a snapshot of one slot.
type SlotInfo struct {
	ID       int    `json:"id"`
	Respawns int    `json:"respawns"`
	Served   uint64 `json:"served"`
	Alive    bool   `json:"alive"`
}

type slot struct {
	id       int
	respawns int
	endpoint *handoff.Endpoint
	worker   *Worker
}

// Pool is a fixed-size table of worker slots.
//
// Start, Dispatch, Respawn and Stop must be called from a single goroutine,
// the dispatcher. Size, Alive and Slots are safe for concurrent use.
type Pool struct {
	handler      Handler
	logger       logger.Logger
	workerLogger logger.Logger
	metrics      *metric.Registry

	// mu guards slot contents against Slots; the dispatcher is the only
	// writer.
	mu    sync.RWMutex
	slots []*slot
	exits chan Exit
	alive atomic.Int32
	wg    sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithWorkerLogger sets the logger workers log with. Defaults to the pool's
// logger.
func WithWorkerLogger(l logger.Logger) Option {
	return func(p *Pool) {
		p.workerLogger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool creates a pool of size slots serviced by handler. No worker runs
// until Start.
func NewPool(size int, handler Handler, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("worker: pool size must be at least 1, got %d", size)
	}
	if handler == nil {
		return nil, errors.New("worker: handler is required")
	}

	p := &Pool{
		handler: handler,
		logger:  logger.Nop(),
		slots:   make([]*slot, size),
		// Each slot has at most one unreported death at a time.
		exits: make(chan Exit, size),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workerLogger == nil {
		p.workerLogger = p.logger
	}
	for i := range p.slots {
		p.slots[i] = &slot{id: i}
	}
	return p, nil
}

// Start spawns a worker into every slot.
func (p *Pool) Start() error {
	for _, s := range p.slots {
		if err := p.spawn(s); err != nil {
			return fmt.Errorf("worker: start slot %d: %w", s.id, err)
		}
	}
	p.logger.Info("worker pool started", "size", len(p.slots))
	return nil
}

func (p *Pool) spawn(s *slot) error {
	dispatcherEnd, workerEnd, err := handoff.NewPair()
	if err != nil {
		return err
	}

	w := newWorker(s.id, workerEnd, p.handler, p.workerLogger, p.metrics)
	p.mu.Lock()
	s.endpoint = dispatcherEnd
	s.worker = w
	p.mu.Unlock()

	p.alive.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.run()
		p.alive.Add(-1)
		if !w.stopped() {
			p.exits <- Exit{Slot: w.slot, Err: w.err}
		}
	}()
	return nil
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Alive returns the number of slots with a running worker.
func (p *Pool) Alive() int {
	return int(p.alive.Load())
}

// Exited delivers one Exit per worker that died.
func (p *Pool) Exited() <-chan Exit {
	return p.exits
}

// Dispatch hands conn off to the worker in slot. Ownership of conn moves to
// the pool: it is closed here whether or not the handoff succeeds.
func (p *Pool) Dispatch(id int, conn net.Conn) error {
	s, err := p.slot(id)
	if err != nil {
		conn.Close()
		return err
	}
	return s.endpoint.Send(handoff.TagConn, conn)
}

// ping sends a liveness ping to the worker in slot.
func (p *Pool) ping(id int) error {
	s, err := p.slot(id)
	if err != nil {
		return err
	}
	return s.endpoint.Ping()
}

// Respawn starts a fresh worker in a slot whose worker has ended. The slot
// id is preserved.
func (p *Pool) Respawn(id int) error {
	s, err := p.slot(id)
	if err != nil {
		return err
	}
	select {
	case <-s.worker.Done():
	default:
		return ErrSlotBusy
	}

	s.endpoint.Close()
	if err := p.spawn(s); err != nil {
		return fmt.Errorf("worker: respawn slot %d: %w", id, err)
	}
	p.mu.Lock()
	s.respawns++
	respawns := s.respawns
	p.mu.Unlock()
	p.metrics.Respawned(id)
	p.logger.Info("worker respawned", "slot", id, "respawns", respawns)
	return nil
}

// kill ends the worker in slot as if it had crashed. The death is reported
// on Exited.
func (p *Pool) kill(id int) error {
	s, err := p.slot(id)
	if err != nil {
		return err
	}
	s.worker.Kill()
	return nil
}

// Slots returns a snapshot of the slot table.
func (p *Pool) Slots() []SlotInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	infos := make([]SlotInfo, len(p.slots))
	for i, s := range p.slots {
		info := SlotInfo{ID: s.id, Respawns: s.respawns}
		if s.worker != nil {
			info.Served = s.worker.Served()
			select {
			case <-s.worker.Done():
			default:
				info.Alive = true
			}
		}
		infos[i] = info
	}
	return infos
}

// Stop asks every worker to stop and waits until all of them have ended.
// In-flight connections are completed. If ctx expires first, the handoff
// channels are closed and ctx's error is returned.
func (p *Pool) Stop(ctx context.Context) error {
	for _, s := range p.slots {
		if s.worker != nil {
			s.worker.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	for _, s := range p.slots {
		if s.endpoint != nil {
			s.endpoint.Close()
		}
	}
	if err != nil {
		p.logger.Warn("worker pool stop timed out", "alive", p.Alive())
		return fmt.Errorf("worker: stop pool: %w", err)
	}
	p.logger.Info("worker pool stopped")
	return nil
}

func (p *Pool) slot(id int) (*slot, error) {
	if id < 0 || id >= len(p.slots) {
		return nil, fmt.Errorf("%w: %d", ErrNoSlot, id)
	}
	s := p.slots[id]
	if s.worker == nil {
		return nil, fmt.Errorf("worker: slot %d not started", id)
	}
	return s, nil
}
