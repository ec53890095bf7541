// Package shutdown provides ordered teardown for a server generation.
//
// Resources register a named hook as they are acquired:
//
//   - the listening socket
//   - the worker pool
//   - the metrics endpoint
//
// Shutdown runs the hooks newest first so that a resource is released
// before anything it depends on. All hooks share one deadline.
//
// Usage:
//
//	sd := shutdown.NewHandler(cfg.StopTimeout)
//	sd.OnShutdown("listener", func(context.Context) error { return ln.Close() })
//	defer sd.Shutdown()
package shutdown
