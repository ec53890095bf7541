// Package handoff provides the descriptor-handoff channel.
package handoff

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Message tags.
const (
	// TagConn marks a message that carries a connection descriptor.
	TagConn byte = '1'
	// TagPing marks a liveness ping without a descriptor.
	TagPing byte = 'p'
)

// maxRights bounds the descriptors accepted in one message. Anything beyond
// the first descriptor is closed on receipt.
const maxRights = 4

var (
	// ErrClosed is returned when the peer endpoint has been closed.
	ErrClosed = errors.New("handoff: channel closed")
	// ErrInterrupted is returned by Receive after Interrupt was called.
	ErrInterrupted = errors.New("handoff: receive interrupted")
	// ErrNotTransferable is returned when a connection exposes no descriptor.
	ErrNotTransferable = errors.New("handoff: connection has no descriptor")
	// ErrBadDescriptor is returned when a received descriptor cannot be used
	// as a connection. The message tag is still valid.
	ErrBadDescriptor = errors.New("handoff: unusable descriptor")
)

// Message is a single received handoff message.
type Message struct {
	// Tag is the control byte.
	Tag byte
	// Conn is the handed-off connection, nil for pings and for messages
	// whose descriptor could not be recovered.
	Conn net.Conn
}

// Endpoint is one side of a handoff channel.
type Endpoint struct {
	conn        *net.UnixConn
	interrupted atomic.Bool
}

// NewPair creates a connected pair of endpoints. The first is meant for the
// dispatcher, the second for the worker.
func NewPair() (*Endpoint, *Endpoint, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("handoff: socketpair: %w", err)
	}

	dispatcher, err := newEndpoint(fds[0], "handoff-dispatcher")
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	worker, err := newEndpoint(fds[1], "handoff-worker")
	if err != nil {
		dispatcher.Close()
		return nil, nil, err
	}
	return dispatcher, worker, nil
}

func newEndpoint(fd int, name string) (*Endpoint, error) {
	f := os.NewFile(uintptr(fd), name)
	c, err := net.FileConn(f)
	// FileConn dups the descriptor; the original is ours to close.
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("handoff: wrap %s: %w", name, err)
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, fmt.Errorf("handoff: %s is %T, not a unix socket", name, c)
	}
	return &Endpoint{conn: uc}, nil
}

// Send transfers conn to the peer under the given tag. A nil conn sends the
// tag alone. Send consumes conn: it is closed before Send returns, whether
// or not the transfer succeeded.
func (e *Endpoint) Send(tag byte, conn net.Conn) error {
	if conn == nil {
		if _, _, err := e.conn.WriteMsgUnix([]byte{tag}, nil, nil); err != nil {
			return fmt.Errorf("handoff: send tag: %w", err)
		}
		return nil
	}
	defer conn.Close()

	sc, ok := conn.(syscall.Conn)
	if !ok {
		return ErrNotTransferable
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("handoff: %w", err)
	}

	var sendErr error
	ctlErr := raw.Control(func(fd uintptr) {
		_, _, sendErr = e.conn.WriteMsgUnix([]byte{tag}, unix.UnixRights(int(fd)), nil)
	})
	if ctlErr != nil {
		return fmt.Errorf("handoff: access descriptor: %w", ctlErr)
	}
	if sendErr != nil {
		return fmt.Errorf("handoff: send descriptor: %w", sendErr)
	}
	return nil
}

// Ping sends a liveness ping.
func (e *Endpoint) Ping() error {
	return e.Send(TagPing, nil)
}

// Receive blocks until a message arrives, the peer closes the channel, or
// Interrupt is called.
func (e *Endpoint) Receive() (Message, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(maxRights*4))

	var n, oobn int
	for {
		var err error
		n, oobn, _, _, err = e.conn.ReadMsgUnix(buf, oob)
		if err == nil {
			break
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// Clear the deadline before consuming the flag so an Interrupt
			// racing with us either is reported now or re-arms the deadline.
			e.conn.SetReadDeadline(time.Time{})
			if e.interrupted.CompareAndSwap(true, false) {
				return Message{}, ErrInterrupted
			}
			// Left over from an Interrupt that was already reported.
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return Message{}, ErrClosed
		}
		return Message{}, fmt.Errorf("handoff: receive: %w", err)
	}
	if n == 0 && oobn == 0 {
		return Message{}, ErrClosed
	}

	msg := Message{Tag: buf[0]}
	fds := parseRights(oob[:oobn])
	if len(fds) == 0 {
		return msg, nil
	}
	for _, extra := range fds[1:] {
		unix.Close(extra)
	}

	unix.CloseOnExec(fds[0])
	f := os.NewFile(uintptr(fds[0]), "handoff-conn")
	c, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return msg, fmt.Errorf("%w: %v", ErrBadDescriptor, err)
	}
	msg.Conn = c
	return msg, nil
}

// parseRights extracts every SCM_RIGHTS descriptor from a control buffer.
// Malformed control data yields no descriptors.
func parseRights(oob []byte) []int {
	if len(oob) == 0 {
		return nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil
	}
	var fds []int
	for i := range cmsgs {
		rights, err := unix.ParseUnixRights(&cmsgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds
}

// Interrupt unblocks a pending Receive, which returns ErrInterrupted.
func (e *Endpoint) Interrupt() {
	e.interrupted.Store(true)
	e.conn.SetReadDeadline(time.Unix(1, 0))
}

// Close closes the endpoint. The peer observes ErrClosed.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}
