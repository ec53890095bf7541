// Package supervisor implements the manager: the long-lived process that
// owns the configuration and keeps exactly one server generation running.
//
// The manager moves through these states:
//
//	LOADING_CONFIG -> DAEMONIZED -> SPAWNING -> WAITING
//	WAITING -> RECONFIGURING -> SPAWNING
//	WAITING -> STOPPED
//
// Whether a generation that exited is replaced or the manager stops is
// decided by the restart semaphore: a generation posts it before leaving
// for a reload. Hang-up, a control socket reload and a config file change
// reload from the manager's side. Terminate, interrupt and a control socket
// shutdown stop it.
package supervisor
