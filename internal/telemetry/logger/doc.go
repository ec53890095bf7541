// Package logger provides structured logging for forkhttpd.
//
// It wraps the standard library log/slog behind a small Logger interface:
//
//   - logger.go: handler construction, level control, the global default
//   - output.go: log destination handling (stderr or an append-only file)
//
// Every process role (manager, server, worker) logs through the same
// interface; the role is attached as the "role" attribute so that the
// records of all processes sharing a log file can be told apart.
package logger
