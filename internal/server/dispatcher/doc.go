// Package dispatcher implements the server process of one generation.
//
// Startup runs in a fixed order, and any failure aborts the generation:
//
//  1. bind and listen on the configured address
//  2. set the signal disposition
//  3. enter the filesystem jail
//  4. drop privileges
//  5. start the worker pool
//
// The dispatcher then accepts connections and hands each one to a worker
// slot in strict round robin. A worker that dies is respawned into its
// slot before the next connection is dispatched. SIGHUP posts the restart
// semaphore and ends the generation with OutcomeReload; SIGTERM and SIGINT
// end it with OutcomeTerminate.
package dispatcher
