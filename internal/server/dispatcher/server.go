package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/forkhttpd/internal/infra/privilege"
	"github.com/yndnr/forkhttpd/internal/infra/shutdown"
	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/server/httphandler"
	"github.com/yndnr/forkhttpd/internal/server/httpserver"
	"github.com/yndnr/forkhttpd/internal/server/worker"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
	"github.com/yndnr/forkhttpd/internal/telemetry/metric"
)

// Outcome is how a generation ended.
type Outcome int

const (
	// OutcomeTerminate means the generation was told to stop for good.
	OutcomeTerminate Outcome = iota
	// OutcomeReload means the generation posted the restart semaphore and
	// expects to be replaced.
	OutcomeReload
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReload:
		return "reload"
	default:
		return "terminate"
	}
}

const (
	// respawnInterval is the sustained rate at which dead workers are
	// replaced. A burst of one respawn per slot is allowed.
	respawnInterval = 100 * time.Millisecond

	maxAcceptDelay = time.Second
)

// Poster posts the restart semaphore.
type Poster interface {
	Post() error
}

// Options configures a Server.
type Options struct {
	// Config is the generation's configuration record. Required.
	Config *config.Config

	// Generation identifies this generation in logs and /healthz.
	Generation string

	// Restart is posted on SIGHUP. Nil turns SIGHUP into a plain stop.
	Restart Poster

	Logger logger.Logger

	// WorkerLogger is used by workers and the request handler. Defaults to
	// Logger.
	WorkerLogger logger.Logger

	Metrics *metric.Registry

	// Handler services handed-off connections. Nil serves the document
	// root over HTTP.
	Handler worker.Handler

	// Signals replaces the process signal subscription.
	Signals <-chan os.Signal
}

// Server is the dispatcher of one generation.
type Server struct {
	cfg        *config.Config
	generation string
	restart    Poster
	logger     logger.Logger
	workerLog  logger.Logger
	metrics    *metric.Registry
	handler    worker.Handler
	signals    <-chan os.Signal

	pool    *worker.Pool
	rr      *roundRobin
	limiter *rate.Limiter
	retry   chan int
	quit    chan struct{}

	mu          sync.Mutex
	addr        net.Addr
	metricsAddr net.Addr
	ready       chan struct{}
}

// New creates a server. Nothing is bound until Run.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("dispatcher: config is required")
	}
	s := &Server{
		cfg:        opts.Config,
		generation: opts.Generation,
		restart:    opts.Restart,
		logger:     opts.Logger,
		workerLog:  opts.WorkerLogger,
		metrics:    opts.Metrics,
		handler:    opts.Handler,
		signals:    opts.Signals,
		ready:      make(chan struct{}),
		quit:       make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.workerLog == nil {
		s.workerLog = s.logger
	}
	return s, nil
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// MetricsAddr returns the bound telemetry address, nil before Ready or when
// the endpoint is disabled.
func (s *Server) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsAddr
}

// Run starts the generation and serves until it is told to stop. Startup
// errors are returned before any connection is accepted.
func (s *Server) Run(ctx context.Context) (Outcome, error) {
	cfg := s.cfg
	sd := shutdown.NewHandler(cfg.StopTimeout)
	defer func() {
		close(s.quit)
		if err := sd.Shutdown(); err != nil {
			s.logger.Warn("generation teardown incomplete", "error", err)
		}
	}()

	ln, err := Listen(ctx, cfg.Host, cfg.Port, cfg.Backlog)
	if err != nil {
		return OutcomeTerminate, err
	}
	s.logger.Info("listening", "address", ln.Addr().String(), "backlog", cfg.Backlog)

	// Bound before the jail; the address may need resolving.
	var metricsLn net.Listener
	if cfg.MetricsAddr != "" {
		metricsLn, err = net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			ln.Close()
			return OutcomeTerminate, fmt.Errorf("dispatcher: metrics listener: %w", err)
		}
	}

	signals := s.signals
	if signals == nil {
		ch, stop := subscribe()
		defer stop()
		signals = ch
	}

	res, err := privilege.Apply(privilege.Options{
		Root:  cfg.DocumentRoot,
		Jail:  cfg.Jail,
		User:  cfg.User,
		Group: cfg.Group,
	}, s.logger)
	if err != nil {
		closeListeners(ln, metricsLn)
		return OutcomeTerminate, fmt.Errorf("dispatcher: confine: %w", err)
	}

	handler := s.handler
	if handler == nil {
		handler = httphandler.New(httphandler.Options{
			Root:         res.Root,
			IndexPage:    cfg.IndexPage,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Logger:       s.workerLog.With("component", "handler"),
			Metrics:      s.metrics,
		})
	}

	pool, err := worker.NewPool(cfg.Workers, handler,
		worker.WithLogger(s.logger.With("component", "pool")),
		worker.WithWorkerLogger(s.workerLog),
		worker.WithMetrics(s.metrics))
	if err != nil {
		closeListeners(ln, metricsLn)
		return OutcomeTerminate, err
	}
	if err := pool.Start(); err != nil {
		closeListeners(ln, metricsLn)
		pool.Stop(context.Background())
		return OutcomeTerminate, err
	}
	s.pool = pool
	s.metrics.MustRegister(metric.NewPoolCollector(pool))
	s.rr = newRoundRobin(pool.Size())
	s.limiter = rate.NewLimiter(rate.Every(respawnInterval), pool.Size())
	s.retry = make(chan int, pool.Size())

	if metricsLn != nil {
		srv := httpserver.New(httpserver.NewRouter(&httpserver.RouterConfig{
			Metrics:    s.metrics,
			Pool:       pool,
			Generation: s.generation,
			Logger:     s.logger.With("component", "telemetry"),
		}))
		go func() {
			if err := srv.Serve(metricsLn); err != nil {
				s.logger.Warn("telemetry endpoint stopped", "error", err)
			}
		}()
		sd.OnShutdown("telemetry", srv.Shutdown)
		s.logger.Info("telemetry endpoint listening", "address", metricsLn.Addr().String())
	}
	sd.OnShutdown("workers", pool.Stop)
	sd.OnShutdown("listener", func(context.Context) error {
		err := ln.Close()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})

	accepted := make(chan net.Conn)
	acceptErr := make(chan error, 1)
	go s.acceptLoop(ln, accepted, acceptErr)

	s.mu.Lock()
	s.addr = ln.Addr()
	if metricsLn != nil {
		s.metricsAddr = metricsLn.Addr()
	}
	s.mu.Unlock()
	close(s.ready)
	s.logger.Info("server started",
		"generation", s.generation,
		"workers", pool.Size(),
		"root", cfg.DocumentRoot,
		"jailed", res.Jailed)

	return s.loop(ctx, signals, accepted, acceptErr)
}

func (s *Server) loop(ctx context.Context, signals <-chan os.Signal, accepted <-chan net.Conn, acceptErr <-chan error) (Outcome, error) {
	for {
		select {
		case c := <-accepted:
			s.reapExits()
			s.dispatch(c)

		case exit := <-s.pool.Exited():
			s.handleExit(exit)

		case id := <-s.retry:
			s.respawn(id)

		case sig := <-signals:
			switch {
			case isReload(sig):
				s.logger.Info("reload requested", "signal", sig.String())
				if s.restart == nil {
					s.logger.Warn("no restart semaphore, stopping instead of reloading")
					return OutcomeTerminate, nil
				}
				if err := s.restart.Post(); err != nil {
					return OutcomeTerminate, fmt.Errorf("dispatcher: post restart: %w", err)
				}
				return OutcomeReload, nil
			case isTerminate(sig):
				s.logger.Info("termination requested", "signal", sig.String())
				return OutcomeTerminate, nil
			}

		case err := <-acceptErr:
			return OutcomeTerminate, fmt.Errorf("dispatcher: accept: %w", err)

		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping")
			return OutcomeTerminate, nil
		}
	}
}

// dispatch hands c to the next slot in round robin. A failed handoff drops
// the connection.
func (s *Server) dispatch(c net.Conn) {
	slot := s.rr.Next()
	err := s.pool.Dispatch(slot, c)
	s.metrics.HandedOff(slot, err)
	if err != nil {
		s.logger.Warn("handoff failed, connection dropped", "slot", slot, "error", err)
	}
}

// reapExits handles every worker death already reported so that a slot is
// refilled before a connection is routed to it.
func (s *Server) reapExits() {
	for {
		select {
		case exit := <-s.pool.Exited():
			s.handleExit(exit)
		default:
			return
		}
	}
}

func (s *Server) handleExit(exit worker.Exit) {
	s.logger.Warn("worker died", "slot", exit.Slot, "error", exit.Err)
	s.respawn(exit.Slot)
}

// respawn refills slot now, or later when the respawn budget is spent.
func (s *Server) respawn(slot int) {
	r := s.limiter.Reserve()
	if d := r.Delay(); d > 0 {
		s.logger.Debug("respawn delayed", "slot", slot, "delay", d)
		s.retryAfter(slot, d)
		return
	}
	if err := s.pool.Respawn(slot); err != nil {
		if errors.Is(err, worker.ErrSlotBusy) {
			return
		}
		s.logger.Error("respawn failed", "slot", slot, "error", err)
		s.retryAfter(slot, respawnInterval)
	}
}

func (s *Server) retryAfter(slot int, d time.Duration) {
	time.AfterFunc(d, func() {
		select {
		case s.retry <- slot:
		case <-s.quit:
		}
	})
}

// acceptLoop feeds accepted connections to the event loop. Transient
// errors are retried with backoff; a closed listener ends the loop
// quietly; anything else is reported on errc.
func (s *Server) acceptLoop(ln net.Listener, out chan<- net.Conn, errc chan<- error) {
	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if (errors.As(err, &ne) && ne.Timeout()) || isTransient(err) {
				s.metrics.AcceptFailed()
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else {
					delay *= 2
				}
				if delay > maxAcceptDelay {
					delay = maxAcceptDelay
				}
				s.logger.Warn("accept failed, retrying", "error", err, "delay", delay)
				select {
				case <-time.After(delay):
					continue
				case <-s.quit:
					return
				}
			}
			errc <- err
			return
		}
		delay = 0
		s.metrics.Accepted()

		select {
		case out <- c:
		case <-s.quit:
			c.Close()
			return
		}
	}
}

func closeListeners(lns ...net.Listener) {
	for _, ln := range lns {
		if ln != nil {
			ln.Close()
		}
	}
}
