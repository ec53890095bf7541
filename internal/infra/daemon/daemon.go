package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// MarkerEnv is set in the environment of the detached process.
const MarkerEnv = "_FORKHTTPD_DETACHED"

// ErrDetached is returned to the launching process once the daemon runs.
var ErrDetached = errors.New("daemon: detached into background")

// Detacher re-executes a binary as a session leader.
type Detacher struct {
	// Path is the binary to execute; the running executable when empty.
	Path string
	// Args are the arguments after argv[0]; os.Args[1:] when nil.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// Dir is the daemon's working directory. Empty keeps the caller's,
	// which relative paths in Args are resolved against.
	Dir string
}

// IsDetached reports whether this process is the detached daemon.
func IsDetached() bool {
	return os.Getenv(MarkerEnv) == "1"
}

// Detach returns nil in the detached process. Otherwise it starts the
// detached copy with stdin on /dev/null and stdout and stderr appended to
// logPath, or on /dev/null when logPath is empty, and returns ErrDetached.
func (d *Detacher) Detach(logPath string) error {
	if IsDetached() {
		// Generations must not inherit the marker.
		os.Unsetenv(MarkerEnv)
		return nil
	}

	path := d.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("daemon: locate executable: %w", err)
		}
		path = exe
	}
	args := d.Args
	if args == nil {
		args = os.Args[1:]
	}

	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open %s: %w", os.DevNull, err)
	}
	defer null.Close()

	out := null
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
		if err != nil {
			return fmt.Errorf("daemon: open log %s: %w", logPath, err)
		}
		defer f.Close()
		out = f
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(append(os.Environ(), d.Env...), MarkerEnv+"=1")
	cmd.Stdin = null
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Dir = d.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: start %s: %w", path, err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("daemon: release child: %w", err)
	}
	return ErrDetached
}
