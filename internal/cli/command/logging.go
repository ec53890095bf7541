package command

import (
	"io"

	"github.com/yndnr/forkhttpd/internal/server/config"
	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
)

// newLogger builds the logger a record asks for and makes it the default.
// The returned output is the open log file; closing it releases the file.
func newLogger(cfg *config.Config, role string) (logger.Logger, io.WriteCloser, error) {
	out, err := logger.OpenOutput(cfg.LogPath)
	if err != nil {
		return nil, nil, err
	}
	l, err := roleLogger(cfg, out, role)
	if err != nil {
		out.Close()
		return nil, nil, err
	}
	logger.SetDefault(l)
	return l, out, nil
}

// managerLogger builds the manager's logger for a record. The manager
// closes the output once the next logger replaces it.
func managerLogger(cfg *config.Config) (logger.Logger, io.Closer, error) {
	return newLogger(cfg, logger.RoleManager)
}

// roleLogger builds a logger for role that writes to an already open output.
func roleLogger(cfg *config.Config, out io.Writer, role string) (logger.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: out,
		Role:   role,
	})
}
