package restartsem

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("restartsem: closed")

// Semaphore is the manager's side of the restart-reason semaphore.
type Semaphore struct {
	r *os.File
	w *os.File
}

// New creates a semaphore with value 0.
func New() (*Semaphore, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("restartsem: pipe: %w", err)
	}
	return &Semaphore{r: r, w: w}, nil
}

// PostEnd returns the write end to hand to a generation process. The
// semaphore keeps ownership of it.
func (s *Semaphore) PostEnd() *os.File {
	return s.w
}

// Post increments the value.
func (s *Semaphore) Post() error {
	return post(s.w)
}

// Value returns the current value without changing it.
func (s *Semaphore) Value() (int, error) {
	if s.r == nil {
		return 0, ErrClosed
	}
	raw, err := s.r.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("restartsem: %w", err)
	}

	var n int
	var ioctlErr error
	if err := raw.Control(func(fd uintptr) {
		n, ioctlErr = unix.IoctlGetInt(int(fd), ioctlInq)
	}); err != nil {
		return 0, fmt.Errorf("restartsem: %w", err)
	}
	if ioctlErr != nil {
		return 0, fmt.Errorf("restartsem: value: %w", ioctlErr)
	}
	return n, nil
}

// TryWait decrements the value if it is positive and reports whether it
// did. It never blocks.
func (s *Semaphore) TryWait() (bool, error) {
	if s.r == nil {
		return false, ErrClosed
	}
	raw, err := s.r.SyscallConn()
	if err != nil {
		return false, fmt.Errorf("restartsem: %w", err)
	}

	var buf [1]byte
	var n int
	var readErr error
	if err := raw.Read(func(fd uintptr) bool {
		n, readErr = unix.Read(int(fd), buf[:])
		// Report done even on EAGAIN so that the poller never waits.
		return true
	}); err != nil {
		return false, fmt.Errorf("restartsem: %w", err)
	}
	switch {
	case errors.Is(readErr, unix.EAGAIN):
		return false, nil
	case readErr != nil:
		return false, fmt.Errorf("restartsem: wait: %w", readErr)
	}
	return n == 1, nil
}

// Drain consumes the whole value and returns how much was consumed.
func (s *Semaphore) Drain() (int, error) {
	drained := 0
	for {
		ok, err := s.TryWait()
		if err != nil {
			return drained, err
		}
		if !ok {
			return drained, nil
		}
		drained++
	}
}

// Close releases both ends of the pipe.
func (s *Semaphore) Close() error {
	if s.r == nil {
		return nil
	}
	rerr := s.r.Close()
	werr := s.w.Close()
	s.r, s.w = nil, nil
	return errors.Join(rerr, werr)
}

// Poster is a generation's side of the semaphore: it can only post.
type Poster struct {
	w *os.File
}

// OpenPoster wraps an inherited write end.
func OpenPoster(fd uintptr) (*Poster, error) {
	if _, err := unix.FcntlInt(fd, unix.F_GETFD, 0); err != nil {
		return nil, fmt.Errorf("restartsem: descriptor %d: %w", fd, err)
	}
	unix.CloseOnExec(int(fd))
	return &Poster{w: os.NewFile(fd, "restart-semaphore")}, nil
}

// Post increments the value.
func (p *Poster) Post() error {
	return post(p.w)
}

// Close releases the write end.
func (p *Poster) Close() error {
	return p.w.Close()
}

func post(w *os.File) error {
	if w == nil {
		return ErrClosed
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return fmt.Errorf("restartsem: post: %w", err)
	}
	return nil
}
