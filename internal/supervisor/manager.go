package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yndnr/forkhttpd/internal/infra/confloader"
	"github.com/yndnr/forkhttpd/internal/infra/daemon"
	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/server/localserver"
	"github.com/yndnr/forkhttpd/internal/supervisor/restartsem"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
)

var (
	// ErrDetached is returned in the launching process after the manager
	// moved to the background.
	ErrDetached = daemon.ErrDetached

	// ErrGenerationFailed is returned when the last generation died
	// without a planned restart and with a non-zero status.
	ErrGenerationFailed = errors.New("supervisor: generation failed")

	errStopping = errors.New("manager is stopping")
)

// request is a reload or shutdown asked for outside the signal path.
type request int

const (
	requestReload request = iota
	requestShutdown
)

// Options configures a Manager.
type Options struct {
	// Source loads configuration records. Required.
	Source ConfigSource

	// Daemon detaches the manager; nil stays in the foreground.
	Daemon Daemonizer

	// NewSpawner builds the generation spawner. Defaults to ExecSpawner().
	NewSpawner SpawnerFactory

	// NewLogger builds the manager's logger for a record. It is called
	// after daemonization and after every reload. The closer releases the
	// logger's output once a replacement is in place or the manager stops.
	NewLogger func(cfg *config.Config) (logger.Logger, io.Closer, error)

	// Signals replaces the process signal subscription.
	Signals <-chan os.Signal
}

// Manager supervises server generations.
type Manager struct {
	source     ConfigSource
	daemon     Daemonizer
	newSpawner SpawnerFactory
	newLogger  func(cfg *config.Config) (logger.Logger, io.Closer, error)
	signals    <-chan os.Signal

	// logger follows every reload; components started once keep logging
	// to the current output.
	logger    *logger.Handle
	logOutput io.Closer
	requests  chan request

	mu          sync.Mutex
	state       State
	current     Generation
	generations int
	reloads     int
	started     time.Time
}

// New creates a manager.
func New(opts Options) (*Manager, error) {
	if opts.Source == nil {
		return nil, errors.New("supervisor: config source is required")
	}
	m := &Manager{
		source:     opts.Source,
		daemon:     opts.Daemon,
		newSpawner: opts.NewSpawner,
		newLogger:  opts.NewLogger,
		signals:    opts.Signals,
		logger:     logger.NewHandle(nil),
		requests:   make(chan request, 1),
		state:      StateLoadingConfig,
	}
	if m.newSpawner == nil {
		m.newSpawner = ExecSpawner()
	}
	return m, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generations returns how many generations have been spawned.
func (m *Manager) Generations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations
}

// Reload asks the manager to replace the running generation.
func (m *Manager) Reload() error {
	return m.request(requestReload)
}

// Shutdown asks the manager to stop.
func (m *Manager) Shutdown() error {
	return m.request(requestShutdown)
}

func (m *Manager) request(r request) error {
	if m.State() == StateStopped {
		return errStopping
	}
	select {
	case m.requests <- r:
	default:
		// A request is already pending; the loop will act on it.
	}
	return nil
}

// Status describes the manager for the control socket.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := fmt.Sprintf("state=%s generations=%d reloads=%d", m.state, m.generations, m.reloads)
	if m.current != nil {
		s += fmt.Sprintf(" generation=%s pid=%d", m.current.ID(), m.current.PID())
	}
	if !m.started.IsZero() {
		s += fmt.Sprintf(" uptime=%s", time.Since(m.started).Round(time.Second))
	}
	return s
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.logger.Debug("manager state", "state", s.String())
}

// Run drives the manager until it stops. It returns a *config.ConfigError
// when the initial record cannot be loaded, ErrDetached in the launching
// process of a daemonized manager, and ErrGenerationFailed when the last
// generation failed.
func (m *Manager) Run(ctx context.Context) error {
	defer m.releaseLogger()
	defer m.setState(StateStopped)

	m.setState(StateLoadingConfig)
	cfg, err := m.source.Load()
	if err != nil {
		return err
	}

	m.setState(StateDaemonized)
	if m.daemon != nil {
		if err := m.daemon.Detach(cfg.LogPath); err != nil {
			return err
		}
	}
	if err := m.configureLogger(cfg); err != nil {
		return err
	}
	m.mu.Lock()
	m.started = time.Now()
	m.mu.Unlock()
	m.logger.Info("manager started", "pid", os.Getpid(), "config", cfg)

	signals := m.signals
	if signals == nil {
		ch := make(chan os.Signal, 4)
		signal.Notify(ch, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(ch)
		signals = ch
	}

	sem, err := restartsem.New()
	if err != nil {
		return err
	}
	defer sem.Close()

	spawner, err := m.newSpawner(sem)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	stopIPC, err := m.startIPC(cfg)
	if err != nil {
		return err
	}
	defer func() { stopIPC() }()

	for {
		m.setState(StateSpawning)
		gen, err := spawner.Spawn(cfg)
		if err != nil {
			return fmt.Errorf("supervisor: spawn generation: %w", err)
		}
		m.mu.Lock()
		m.current = gen
		m.generations++
		m.mu.Unlock()
		m.logger.Info("generation spawned", "generation", gen.ID(), "pid", gen.PID())

		m.setState(StateWaiting)
		reload, stopping := m.wait(ctx, gen, sem, signals)

		m.reap(gen, cfg.StopTimeout)
		// A generation may post while the manager is terminating it.
		if n, err := sem.Drain(); err != nil {
			m.logger.Warn("restart semaphore drain failed", "error", err)
		} else if n > 0 && !stopping {
			reload = true
		}
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()

		if !reload {
			if !stopping && gen.Err() != nil {
				m.logger.Error("generation died", "generation", gen.ID(), "exit_code", gen.ExitCode(), "error", gen.Err())
				return fmt.Errorf("%w: exit code %d: %v", ErrGenerationFailed, gen.ExitCode(), gen.Err())
			}
			m.logger.Info("manager stopping", "generations", m.Generations())
			return nil
		}

		m.setState(StateReconfiguring)
		prev := cfg
		cfg, err = m.reconfigure(cfg)
		if err != nil {
			return err
		}
		if ipcChanged(prev, cfg) {
			stopIPC()
			stopIPC = func() {}
			next, err := m.startIPC(cfg)
			if err != nil {
				return err
			}
			stopIPC = next
		}
		m.mu.Lock()
		m.reloads++
		m.mu.Unlock()
	}
}

// wait blocks until gen must be replaced or the manager must stop. It
// reports whether a reload is pending and whether the manager is stopping.
func (m *Manager) wait(ctx context.Context, gen Generation, sem *restartsem.Semaphore, signals <-chan os.Signal) (reload, stopping bool) {
	for {
		select {
		case <-gen.Exited():
			v, err := sem.Value()
			if err != nil {
				m.logger.Warn("restart semaphore unreadable", "error", err)
			}
			if v > 0 {
				sem.TryWait()
				m.logger.Info("generation exited for reload", "generation", gen.ID())
				return true, false
			}
			m.logger.Warn("generation exited unexpectedly", "generation", gen.ID(), "exit_code", gen.ExitCode(), "error", gen.Err())
			return false, false

		case sig := <-signals:
			switch sig {
			case syscall.SIGHUP:
				m.logger.Info("reload requested", "signal", sig.String())
				m.terminate(gen)
				return true, false
			case syscall.SIGTERM, syscall.SIGINT:
				m.logger.Info("termination requested", "signal", sig.String())
				m.terminate(gen)
				return false, true
			default:
				m.logger.Debug("signal ignored", "signal", sig.String())
			}

		case req := <-m.requests:
			if req == requestReload {
				m.logger.Info("reload requested")
				m.terminate(gen)
				return true, false
			}
			m.logger.Info("shutdown requested")
			m.terminate(gen)
			return false, true

		case <-ctx.Done():
			m.terminate(gen)
			return false, true
		}
	}
}

func (m *Manager) terminate(gen Generation) {
	if err := gen.Terminate(); err != nil {
		m.logger.Warn("terminate generation failed", "generation", gen.ID(), "error", err)
	}
}

// reap waits for gen to exit, killing it after timeout.
func (m *Manager) reap(gen Generation, timeout time.Duration) {
	if timeout <= 0 {
		timeout = config.DefaultStopTimeout
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-gen.Exited():
		return
	case <-t.C:
	}
	m.logger.Warn("generation did not stop in time, killing", "generation", gen.ID(), "timeout", timeout)
	if err := gen.Kill(); err != nil {
		m.logger.Error("kill generation failed", "generation", gen.ID(), "error", err)
	}
	<-gen.Exited()
}

// reconfigure builds the next record. Without a config file the current
// record is reused.
func (m *Manager) reconfigure(cur *config.Config) (*config.Config, error) {
	if !cur.CanReload() {
		m.logger.Warn("no config file to reload, restarting with the current configuration")
		return cur, nil
	}
	next, err := m.source.Reload(cur.ConfigFile)
	if err != nil {
		m.logger.Error("reload failed", "file", cur.ConfigFile, "error", err)
		return nil, err
	}
	if err := m.configureLogger(next); err != nil {
		return nil, err
	}
	m.logger.Info("configuration reloaded", "config", next)
	return next, nil
}

func (m *Manager) configureLogger(cfg *config.Config) error {
	if m.newLogger == nil {
		return nil
	}
	l, out, err := m.newLogger(cfg)
	if err != nil {
		return fmt.Errorf("supervisor: logger: %w", err)
	}
	m.logger.Set(l)
	m.closeLogOutput()
	m.logOutput = out
	return nil
}

// releaseLogger detaches the handle from the output before closing it.
func (m *Manager) releaseLogger() {
	m.logger.Set(logger.Nop())
	m.closeLogOutput()
}

func (m *Manager) closeLogOutput() {
	if m.logOutput != nil {
		m.logOutput.Close()
		m.logOutput = nil
	}
}

// ipcChanged reports whether next needs a different watcher or control
// socket than prev.
func ipcChanged(prev, next *config.Config) bool {
	return prev.ControlSocket != next.ControlSocket ||
		prev.Watch != next.Watch ||
		prev.ConfigFile != next.ConfigFile
}

// startIPC starts the config watcher and the control socket when the record
// asks for them.
func (m *Manager) startIPC(cfg *config.Config) (func(), error) {
	var stops []func()
	stop := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if cfg.Watch && cfg.CanReload() {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(m.logger))
		if err != nil {
			return nil, fmt.Errorf("supervisor: config watcher: %w", err)
		}
		if err := w.Watch(cfg.ConfigFile); err != nil {
			w.Stop()
			return nil, fmt.Errorf("supervisor: watch %s: %w", cfg.ConfigFile, err)
		}
		w.OnChange(func(path string) {
			m.logger.Info("config file changed", "file", path)
			m.Reload()
		})
		w.StartAsync()
		stops = append(stops, func() { w.Stop() })
	}

	if cfg.ControlSocket != "" {
		srv := localserver.New(cfg.ControlSocket, localserver.NewHandler(localserver.Actions{
			Status:   m.Status,
			Reload:   m.Reload,
			Shutdown: m.Shutdown,
		}), m.logger.With("component", "control"))
		if err := srv.Listen(); err != nil {
			stop()
			return nil, fmt.Errorf("supervisor: %w", err)
		}
		go func() {
			if err := srv.Serve(); err != nil {
				m.logger.Warn("control socket stopped", "error", err)
			}
		}()
		stops = append(stops, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		})
		m.logger.Info("control socket listening", "path", cfg.ControlSocket)
	}
	return stop, nil
}
