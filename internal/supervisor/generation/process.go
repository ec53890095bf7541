package generation

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/forkhttpd/internal/server/config"
)

// Command is the hidden subcommand that runs a generation.
const Command = "generation"

// IDFlag carries the generation id on the child's command line.
const IDFlag = "id"

var errNotStarted = errors.New("generation: process not started")

// Process is one running generation.
type Process struct {
	id  string
	cmd *exec.Cmd

	exited chan struct{}
	once   sync.Once
	err    error
}

// ID returns the generation id.
func (p *Process) ID() string {
	return p.id
}

// PID returns the child's process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Exited is closed once the child has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Err is the child's exit error, nil for status 0. Valid after Exited.
func (p *Process) Err() error {
	return p.err
}

// ExitCode returns the child's exit status, -1 while running or when it
// was killed by a signal.
func (p *Process) ExitCode() int {
	select {
	case <-p.exited:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Terminate asks the generation to stop.
func (p *Process) Terminate() error {
	return p.signal(syscall.SIGTERM)
}

// Kill ends the generation immediately.
func (p *Process) Kill() error {
	return p.signal(syscall.SIGKILL)
}

func (p *Process) signal(sig syscall.Signal) error {
	if p.cmd.Process == nil {
		return errNotStarted
	}
	select {
	case <-p.exited:
		return nil
	default:
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("generation %s: signal %v: %w", p.id, sig, err)
	}
	return nil
}

func (p *Process) wait() {
	p.err = p.cmd.Wait()
	p.once.Do(func() { close(p.exited) })
}

// Exec spawns generations by re-executing a binary.
type Exec struct {
	path    string
	env     []string
	stdout  io.Writer
	stderr  io.Writer
	restart *os.File
}

// Option configures an Exec.
type Option func(*Exec)

// WithPath sets the binary to execute. The default is the running
// executable.
func WithPath(path string) Option {
	return func(e *Exec) {
		e.path = path
	}
}

// WithEnv appends variables to the child's environment.
func WithEnv(env ...string) Option {
	return func(e *Exec) {
		e.env = append(e.env, env...)
	}
}

// WithOutput sets the child's stdout and stderr. The default is the
// manager's own.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Exec) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// NewExec creates a spawner whose children post to restart.
func NewExec(restart *os.File, opts ...Option) (*Exec, error) {
	if restart == nil {
		return nil, errors.New("generation: restart semaphore is required")
	}
	e := &Exec{
		restart: restart,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.path == "" {
		path, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("generation: locate executable: %w", err)
		}
		e.path = path
	}
	return e, nil
}

// NewID returns a fresh generation id.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Spawn starts a generation running cfg.
func (e *Exec) Spawn(cfg *config.Config) (*Process, error) {
	record, err := config.Encode(cfg)
	if err != nil {
		return nil, err
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("generation: config pipe: %w", err)
	}

	id := NewID()
	cmd := exec.Command(e.path, Command, "--"+IDFlag, id)
	cmd.Env = append(os.Environ(), e.env...)
	cmd.Stdin = nil
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	// ExtraFiles[i] becomes descriptor 3+i in the child.
	cmd.ExtraFiles = []*os.File{r, e.restart}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("generation: start %s: %w", e.path, err)
	}
	r.Close()

	go func() {
		defer w.Close()
		// A child that dies before reading breaks the pipe; its exit is
		// reported through Exited.
		w.Write(record)
	}()

	p := &Process{id: id, cmd: cmd, exited: make(chan struct{})}
	go p.wait()
	return p, nil
}
