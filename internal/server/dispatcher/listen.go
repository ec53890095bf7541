package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Listen binds a TCP socket with SO_REUSEADDR on host:port and listens with
// the given backlog. port may be a number or a service name. An empty host
// binds every IPv4 interface. When host resolves to several addresses the
// first that binds wins.
func Listen(ctx context.Context, host, port string, backlog int) (net.Listener, error) {
	portNum, err := net.DefaultResolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: resolve port %q: %w", port, err)
	}

	ips := []net.IP{net.IPv4zero}
	if host != "" {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dispatcher: resolve host %q: %w", host, err)
		}
		ips = ips[:0]
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}

	var errs []error
	for _, ip := range ips {
		ln, err := listenIP(ip, portNum, backlog)
		if err == nil {
			return ln, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("dispatcher: could not bind %s: %w",
		net.JoinHostPort(host, port), errors.Join(errs...))
}

func listenIP(ip net.IP, port, backlog int) (net.Listener, error) {
	family, sa := sockaddr(ip, port)

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", net.JoinHostPort(ip.String(), fmt.Sprint(port)), err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	f := os.NewFile(uintptr(fd), "listener")
	ln, err := net.FileListener(f)
	// FileListener dups the descriptor; the original is ours to close.
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("wrap listener: %w", err)
	}
	return ln, nil
}

func sockaddr(ip net.IP, port int) (int, unix.Sockaddr) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return unix.AF_INET6, sa
}

// isTransient reports accept errors that leave the listener usable.
func isTransient(err error) bool {
	for _, errno := range []unix.Errno{
		unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM,
		unix.ECONNABORTED, unix.EINTR, unix.EPROTO,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
