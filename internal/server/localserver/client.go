package localserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// ErrCommand is wrapped by errors the server reported for a command.
var ErrCommand = errors.New("control command failed")

// Send runs one command against the control socket at path and returns the
// reply detail.
func Send(ctx context.Context, path, command string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return "", fmt.Errorf("localserver: connect %s: %w", path, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, command+"\n"); err != nil {
		return "", fmt.Errorf("localserver: send: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		return "", fmt.Errorf("localserver: read reply: %w", err)
	}
	reply = strings.TrimRight(reply, "\n")

	switch {
	case reply == "ok":
		return "", nil
	case strings.HasPrefix(reply, "ok "):
		return strings.TrimPrefix(reply, "ok "), nil
	case strings.HasPrefix(reply, "error "):
		return "", fmt.Errorf("%w: %s", ErrCommand, strings.TrimPrefix(reply, "error "))
	default:
		return "", fmt.Errorf("localserver: malformed reply %q", reply)
	}
}
