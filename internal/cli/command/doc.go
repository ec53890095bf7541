// Package command defines the forkhttpd command line using urfave/cli/v2.
//
//   - root.go: the application, exit codes and usage errors
//   - serve.go: the default action, which runs the manager
//   - generation.go: the hidden command a manager spawns for each generation
//   - ctl.go: client for the manager's control socket
//   - config.go: prints the effective configuration record
//   - version.go: prints build information
package command
