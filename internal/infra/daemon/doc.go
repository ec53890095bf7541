// Package daemon detaches the manager from its terminal.
//
// Go cannot fork, so detaching re-executes the binary in a new session with
// a marker variable in its environment. The launching process returns
// ErrDetached and exits; the re-executed process sees the marker, clears it
// and carries on as the daemon.
package daemon
