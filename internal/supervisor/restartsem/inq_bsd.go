//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package restartsem

import "golang.org/x/sys/unix"

// ioctlInq reports the bytes buffered in a pipe.
const ioctlInq = unix.FIONREAD
