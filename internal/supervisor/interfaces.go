package supervisor

import (
	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/supervisor/generation"
	"github.com/yndnr/forkhttpd/internal/supervisor/restartsem"
)

// ConfigSource produces configuration records.
type ConfigSource interface {
	// Load builds the initial record.
	Load() (*config.Config, error)
	// Reload builds a fresh record from path.
	Reload(path string) (*config.Config, error)
}

// Daemonizer detaches the manager. Detach returns ErrDetached in the
// launching process and nil in the detached one.
type Daemonizer interface {
	Detach(logPath string) error
}

// Generation is a running server generation.
type Generation interface {
	ID() string
	PID() int
	// Exited is closed once the generation has been reaped.
	Exited() <-chan struct{}
	// Err is the exit error, nil for a clean exit. Valid after Exited.
	Err() error
	// ExitCode is the exit status, -1 while running or when signalled.
	ExitCode() int
	Terminate() error
	Kill() error
}

// Spawner starts generations.
type Spawner interface {
	Spawn(cfg *config.Config) (Generation, error)
}

// SpawnerFactory builds the spawner once the restart semaphore exists.
type SpawnerFactory func(sem *restartsem.Semaphore) (Spawner, error)

// FileSource loads records with config.Load and config.Reload.
type FileSource struct {
	Options config.LoadOptions
}

// Load implements ConfigSource.
func (s FileSource) Load() (*config.Config, error) {
	return config.Load(s.Options)
}

// Reload implements ConfigSource.
func (s FileSource) Reload(path string) (*config.Config, error) {
	return config.Reload(path)
}

// ExecSpawner spawns generations by re-executing the running binary.
func ExecSpawner(opts ...generation.Option) SpawnerFactory {
	return func(sem *restartsem.Semaphore) (Spawner, error) {
		e, err := generation.NewExec(sem.PostEnd(), opts...)
		if err != nil {
			return nil, err
		}
		return execSpawner{e}, nil
	}
}

type execSpawner struct {
	exec *generation.Exec
}

func (s execSpawner) Spawn(cfg *config.Config) (Generation, error) {
	p, err := s.exec.Spawn(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}
