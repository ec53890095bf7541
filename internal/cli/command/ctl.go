package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/forkhttpd/internal/cli/output"
	"github.com/yndnr/forkhttpd/internal/infra/confloader"
	"github.com/yndnr/forkhttpd/internal/server/localserver"
)

// CtlCommand returns the control socket client.
func CtlCommand() *cli.Command {
	return &cli.Command{
		Name:      "ctl",
		Usage:     "Send a command to a running manager",
		ArgsUsage: "status|reload|shutdown",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "socket",
				Aliases:  []string{"s"},
				Usage:    "control socket `PATH`",
				EnvVars:  []string{confloader.DefaultEnvPrefix + "CONTROL_SOCKET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "status format: table, json or yaml",
				Value:   string(output.FormatTable),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "give up after `DURATION`",
				Value: 5 * time.Second,
			},
		},
		Action: ctl,
	}
}

func ctl(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageErrorf("ctl takes exactly one command: status, reload or shutdown")
	}
	cmd := c.Args().First()
	switch cmd {
	case localserver.CmdStatus, localserver.CmdReload, localserver.CmdShutdown:
	default:
		return usageErrorf("unknown control command %q", cmd)
	}
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return &UsageError{Err: err}
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	reply, err := localserver.Send(ctx, c.String("socket"), cmd)
	if err != nil {
		return err
	}
	if cmd == localserver.CmdStatus {
		return output.NewFormatter(format).Format(c.App.Writer, output.ParsePairs(reply))
	}
	_, err = fmt.Fprintln(c.App.Writer, "ok")
	return err
}
