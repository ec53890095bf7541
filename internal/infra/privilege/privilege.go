package privilege

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
)

var (
	// ErrUnknownUser is returned when the user cannot be resolved.
	ErrUnknownUser = errors.New("privilege: unknown user")
	// ErrUnknownGroup is returned when the group cannot be resolved.
	ErrUnknownGroup = errors.New("privilege: unknown group")
	// ErrStillPrivileged is returned when a drop did not take effect.
	ErrStillPrivileged = errors.New("privilege: process is still privileged")
)

// Credentials identify the account a server drops to.
type Credentials struct {
	User  string
	Group string
	UID   int
	GID   int
}

// Lookup resolves a user and a group by name or numeric id.
func Lookup(userName, groupName string) (*Credentials, error) {
	u, err := user.Lookup(userName)
	if err != nil {
		if _, numErr := strconv.Atoi(userName); numErr != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrUnknownUser, userName, err)
		}
		if u, err = user.LookupId(userName); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrUnknownUser, userName, err)
		}
	}
	g, err := user.LookupGroup(groupName)
	if err != nil {
		if _, numErr := strconv.Atoi(groupName); numErr != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrUnknownGroup, groupName, err)
		}
		if g, err = user.LookupGroupId(groupName); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrUnknownGroup, groupName, err)
		}
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("%w %q: uid %q", ErrUnknownUser, userName, u.Uid)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return nil, fmt.Errorf("%w %q: gid %q", ErrUnknownGroup, groupName, g.Gid)
	}
	return &Credentials{User: u.Username, Group: g.Name, UID: uid, GID: gid}, nil
}

// Jail changes the root directory of the process to dir and moves into it.
func Jail(dir string) error {
	if err := syscall.Chroot(dir); err != nil {
		return fmt.Errorf("privilege: chroot %s: %w", dir, err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("privilege: chdir into jail: %w", err)
	}
	return nil
}

// Drop switches the process to c: supplementary groups, then the group,
// then the user. The syscall package applies each change to every thread
// of the process.
func Drop(c *Credentials) error {
	if err := syscall.Setgroups([]int{c.GID}); err != nil {
		return fmt.Errorf("privilege: setgroups: %w", err)
	}
	if err := syscall.Setgid(c.GID); err != nil {
		return fmt.Errorf("privilege: setgid(%d): %w", c.GID, err)
	}
	if err := syscall.Setuid(c.UID); err != nil {
		return fmt.Errorf("privilege: setuid(%d): %w", c.UID, err)
	}
	if c.UID != 0 && (os.Geteuid() == 0 || os.Getegid() != c.GID) {
		return ErrStillPrivileged
	}
	return nil
}

// Options describes how a server confines itself.
type Options struct {
	// Root is the document root.
	Root string
	// Jail enters Root with chroot.
	Jail bool
	// User and Group name the target account. Both must be set for a drop.
	User  string
	Group string
}

// Result reports what Apply did.
type Result struct {
	// Root is the document root as seen by the confined process: "/" when
	// jailed, Options.Root otherwise.
	Root    string
	Jailed  bool
	Dropped *Credentials
}

// Apply confines the process as described by opts. Accounts are resolved
// first; a failed lookup is fatal. A lone user or group is ignored with a
// warning.
func Apply(opts Options, log logger.Logger) (*Result, error) {
	if log == nil {
		log = logger.Nop()
	}

	var creds *Credentials
	switch {
	case opts.User != "" && opts.Group != "":
		c, err := Lookup(opts.User, opts.Group)
		if err != nil {
			return nil, err
		}
		creds = c
	case opts.User != "" || opts.Group != "":
		log.Warn("both user and group are required to drop privileges, keeping current identity",
			"user", opts.User,
			"group", opts.Group)
	default:
		if os.Geteuid() == 0 {
			log.Warn("running as root; set user and group to drop privileges after startup")
		}
	}

	res := &Result{Root: opts.Root}
	if opts.Jail {
		if err := Jail(opts.Root); err != nil {
			return nil, err
		}
		res.Root = "/"
		res.Jailed = true
		log.Info("entered filesystem jail", "root", opts.Root)
	}

	if creds != nil {
		if err := Drop(creds); err != nil {
			return nil, err
		}
		res.Dropped = creds
		log.Info("dropped privileges",
			"user", creds.User,
			"uid", creds.UID,
			"group", creds.Group,
			"gid", creds.GID)
	}
	return res, nil
}
