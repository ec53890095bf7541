package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/forkhttpd/internal/cli/output"
	"github.com/yndnr/forkhttpd/internal/server/config"
)

// ConfigCommand returns the command that validates a configuration and
// prints the record a generation would run with.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:      "config",
		Usage:     "Validate the configuration and print the effective record",
		ArgsUsage: "[config_file]",
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "format: table, json or yaml",
				Value:   string(output.FormatYAML),
			},
		),
		Action: showConfig,
	}
}

func showConfig(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return &UsageError{Err: err}
	}
	opts, err := loadOptions(c)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, cfg)
}
