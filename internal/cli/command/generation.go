package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/forkhttpd/internal/server/dispatcher"
	"github.com/yndnr/forkhttpd/internal/supervisor/generation"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
	"github.com/yndnr/forkhttpd/internal/telemetry/metric"
)

// GenerationCommand returns the hidden command that runs one server
// generation. Only the manager invokes it.
func GenerationCommand() *cli.Command {
	return &cli.Command{
		Name:   generation.Command,
		Usage:  "run one server generation (spawned by the manager)",
		Hidden: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  generation.IDFlag,
				Usage: "generation `ID` for logs",
			},
		},
		Action: runGeneration,
	}
}

func runGeneration(c *cli.Context) error {
	cfg, restart, err := generation.Inherit()
	if err != nil {
		return err
	}
	defer restart.Close()

	log, out, err := newLogger(cfg, logger.RoleServer)
	if err != nil {
		return err
	}
	defer out.Close()
	workerLog, err := roleLogger(cfg, out, logger.RoleWorker)
	if err != nil {
		return err
	}

	id := c.String(generation.IDFlag)
	log = log.With("generation", id)
	workerLog = workerLog.With("generation", id)

	var metrics *metric.Registry
	if cfg.MetricsAddr != "" {
		metrics = metric.NewRegistry()
	}

	srv, err := dispatcher.New(dispatcher.Options{
		Config:       cfg,
		Generation:   id,
		Restart:      restart,
		Logger:       log,
		WorkerLogger: workerLog,
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}

	outcome, err := srv.Run(c.Context)
	if err != nil {
		log.Error("generation failed", "error", err)
		return err
	}
	log.Info("generation finished", "outcome", outcome.String())
	return nil
}
