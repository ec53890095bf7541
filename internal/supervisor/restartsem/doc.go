// Package restartsem provides the restart-reason semaphore shared by the
// manager and a server generation.
//
// A server that exits because it was asked to reload posts the semaphore
// first; a server that exits for any other reason does not. When the
// manager observes the exit it reads the value: nonzero means reload and
// respawn, zero means stop.
//
// The semaphore is a pipe created by the manager. The value is the number of
// bytes buffered in the pipe, a post writes one byte and a wait consumes
// one. The write end is inherited by each generation; the read end never
// leaves the manager.
package restartsem
