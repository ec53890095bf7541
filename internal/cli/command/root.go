package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/forkhttpd/internal/infra/buildinfo"
	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/supervisor"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// UsageError reports a malformed command line.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:      buildinfo.Name,
		Usage:     "pre-forking static file HTTP server",
		UsageText: buildinfo.Name + " [options] [config_file]",
		Version:   buildinfo.String(),
		Flags:     serveFlags(),
		Action:    serve,
		Commands: []*cli.Command{
			CtlCommand(),
			ConfigCommand(),
			VersionCommand(),
			GenerationCommand(),
		},
		OnUsageError: func(_ *cli.Context, err error, _ bool) error {
			return &UsageError{Err: err}
		},
		// Exit codes are chosen by the caller from the returned error.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// ExitCode maps an error returned by App().Run to the process exit status.
func ExitCode(err error) int {
	var cfgErr *config.ConfigError
	var usageErr *UsageError
	switch {
	case err == nil, errors.Is(err, supervisor.ErrDetached):
		return ExitOK
	case errors.As(err, &cfgErr), errors.As(err, &usageErr):
		return ExitConfig
	default:
		return ExitFailure
	}
}
