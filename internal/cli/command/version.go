package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/forkhttpd/internal/cli/output"
	"github.com/yndnr/forkhttpd/internal/infra/buildinfo"
)

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "format: table, json or yaml",
				Value:   string(output.FormatTable),
			},
		},
		Action: func(c *cli.Context) error {
			format, err := output.ParseFormat(c.String("output"))
			if err != nil {
				return &UsageError{Err: err}
			}
			return output.NewFormatter(format).Format(c.App.Writer, buildinfo.Get())
		},
	}
}
