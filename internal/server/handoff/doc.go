// Package handoff provides the descriptor-handoff channel between the
// dispatcher and a worker.
//
// A channel is a connected AF_UNIX SOCK_SEQPACKET socket pair. Every message
// is a single tag byte, optionally carrying one open connection descriptor as
// SCM_RIGHTS ancillary data:
//
//   - TagConn: a connection handed off for servicing
//   - TagPing: a liveness ping without a descriptor
//
// Sending a connection consumes it: Send always closes the sender's copy, so
// after a handoff only the receiver holds a live handle.
package handoff
