package localserver

import (
	"fmt"
	"io"
	"strings"
)

// Command names.
const (
	CmdStatus   = "status"
	CmdReload   = "reload"
	CmdShutdown = "shutdown"
)

// Actions are the manager operations behind the commands. A nil action
// answers with an error.
type Actions struct {
	Status   func() string
	Reload   func() error
	Shutdown func() error
}

// Handler executes control commands.
type Handler struct {
	actions Actions
}

// NewHandler creates a Handler.
func NewHandler(actions Actions) *Handler {
	return &Handler{actions: actions}
}

// Execute runs cmd and writes the reply line to w.
func (h *Handler) Execute(w io.Writer, cmd string, args []string) error {
	if len(args) > 0 {
		return replyError(w, fmt.Errorf("%s takes no arguments", cmd))
	}
	switch cmd {
	case CmdStatus:
		return h.handleStatus(w)
	case CmdReload:
		return h.run(w, h.actions.Reload)
	case CmdShutdown:
		return h.run(w, h.actions.Shutdown)
	default:
		return replyError(w, fmt.Errorf("unknown command: %s", cmd))
	}
}

func (h *Handler) handleStatus(w io.Writer) error {
	if h.actions.Status == nil {
		return replyError(w, fmt.Errorf("status unavailable"))
	}
	return replyOK(w, h.actions.Status())
}

func (h *Handler) run(w io.Writer, action func() error) error {
	if action == nil {
		return replyError(w, fmt.Errorf("not supported"))
	}
	if err := action(); err != nil {
		return replyError(w, err)
	}
	return replyOK(w, "")
}

func replyOK(w io.Writer, detail string) error {
	line := "ok"
	if detail != "" {
		line += " " + oneLine(detail)
	}
	_, err := io.WriteString(w, line+"\n")
	return err
}

func replyError(w io.Writer, err error) error {
	_, werr := io.WriteString(w, "error "+oneLine(err.Error())+"\n")
	return werr
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
