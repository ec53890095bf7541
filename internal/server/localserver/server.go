package localserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
)

const (
	// maxLine bounds one command line.
	maxLine = 256

	connTimeout = 5 * time.Second
)

// Server is the control socket listener.
type Server struct {
	path    string
	handler *Handler
	logger  logger.Logger

	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a control server on socketPath.
func New(socketPath string, handler *Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		path:    socketPath,
		handler: handler,
		logger:  log,
	}
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Listen creates the socket. A stale socket left by a previous run is
// replaced; any other file at the path is an error.
func (s *Server) Listen() error {
	if fi, err := os.Lstat(s.path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("localserver: %s exists and is not a socket", s.path)
		}
		if c, err := net.DialTimeout("unix", s.path, time.Second); err == nil {
			c.Close()
			return fmt.Errorf("localserver: %s is in use", s.path)
		}
		os.Remove(s.path)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("localserver: listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("localserver: chmod %s: %w", s.path, err)
	}
	s.listener = ln
	s.running.Store(true)
	return nil
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("localserver: Serve called before Listen")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// ListenAndServe combines Listen and Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown closes the listener, waits for open connections and removes the
// socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
		if errors.Is(closeErr, net.ErrClosed) {
			closeErr = nil
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(connTimeout))

	line, err := bufio.NewReaderSize(io.LimitReader(conn, maxLine), maxLine).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		s.logger.Debug("control connection dropped", "error", err)
		return
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		replyError(conn, errors.New("empty command"))
		return
	}
	s.logger.Info("control command", "command", fields[0])
	if err := s.handler.Execute(conn, fields[0], fields[1:]); err != nil {
		s.logger.Debug("control reply failed", "error", err)
	}
}
