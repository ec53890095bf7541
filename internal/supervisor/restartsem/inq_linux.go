package restartsem

import "golang.org/x/sys/unix"

// ioctlInq reports the bytes buffered in a pipe.
const ioctlInq = unix.TIOCINQ
