// Package worker implements the request-servicing workers and the fixed-size
// worker pool owned by the dispatcher.
//
// A worker owns the receiving end of one handoff channel. It loops receiving
// handed-off connections, passes each to the request handler and closes it
// afterwards. Workers never make dispatch decisions.
//
// The pool is a slot table of fixed size. A worker that dies (its loop ends
// without having been asked to stop) is reported on Exited; the dispatcher
// respawns a replacement into the same slot.
package worker
