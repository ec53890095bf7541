package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/forkhttpd/internal/infra/daemon"
	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/supervisor"
)

// flagKeys maps value flags to configuration keys.
var flagKeys = map[string]string{
	"document-root":  "document_root",
	"index-page":     "index_page",
	"log":            "log_path",
	"host":           "host",
	"port":           "port",
	"user":           "user",
	"group":          "group",
	"workers":        "workers",
	"log-level":      "log_level",
	"log-format":     "log_format",
	"metrics-addr":   "metrics_addr",
	"control-socket": "control_socket",
	"watch":          "watch",
}

// configFlags are the flags that shape the configuration record.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "document-root",
			Aliases: []string{"r"},
			Usage:   "serve files from `DIR`",
		},
		&cli.StringFlag{
			Name:    "index-page",
			Aliases: []string{"i"},
			Usage:   "`PATH` served for / (default " + config.DefaultIndexPage + ")",
		},
		&cli.StringFlag{
			Name:  "log",
			Usage: "append log output to `FILE`",
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "bind to `ADDRESS` (default all interfaces)",
		},
		&cli.StringFlag{
			Name:  "port",
			Usage: "listen on `PORT`, a number or service name (default " + config.DefaultPort + ")",
		},
		&cli.StringFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "drop privileges to `USER` (requires --group)",
		},
		&cli.StringFlag{
			Name:    "group",
			Aliases: []string{"g"},
			Usage:   "drop privileges to `GROUP` (requires --user)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: "number of worker slots",
		},
		&cli.BoolFlag{
			Name:  "no-jail",
			Usage: "do not chroot into the document root",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "minimum log `LEVEL`: debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "log `FORMAT`: json or text",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve /metrics and /healthz on `HOST:PORT`",
		},
		&cli.StringFlag{
			Name:  "control-socket",
			Usage: "accept control commands on the Unix socket at `PATH`",
		},
		&cli.BoolFlag{
			Name:  "watch",
			Usage: "reload when the config file changes",
		},
	}
}

func serveFlags() []cli.Flag {
	return append(configFlags(),
		&cli.BoolFlag{
			Name:    "foreground",
			Aliases: []string{"f"},
			Usage:   "do not detach from the terminal",
		},
	)
}

// overrides collects the configuration keys set on the command line.
func overrides(c *cli.Context) map[string]any {
	o := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			o[key] = c.Value(flag)
		}
	}
	if c.IsSet("no-jail") {
		o["jail"] = !c.Bool("no-jail")
	}
	return o
}

func loadOptions(c *cli.Context) (config.LoadOptions, error) {
	if c.NArg() > 1 {
		return config.LoadOptions{}, usageErrorf("at most one config file may be given, got %d", c.NArg())
	}
	return config.LoadOptions{
		File:      c.Args().First(),
		Overrides: overrides(c),
	}, nil
}

func serve(c *cli.Context) error {
	opts, err := loadOptions(c)
	if err != nil {
		return err
	}

	mopts := supervisor.Options{
		Source:    supervisor.FileSource{Options: opts},
		NewLogger: managerLogger,
	}
	if !c.Bool("foreground") {
		mopts.Daemon = &daemon.Detacher{}
	}

	m, err := supervisor.New(mopts)
	if err != nil {
		return err
	}
	return m.Run(c.Context)
}
