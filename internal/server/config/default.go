// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultIndexPage = "/index.html"
	DefaultPort      = "http"
	DefaultWorkers   = 4
	DefaultBacklog   = 16

	DefaultStopTimeout  = 10 * time.Second
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration. DocumentRoot has no
// default.
func Default() *Config {
	return &Config{
		IndexPage:    DefaultIndexPage,
		Port:         DefaultPort,
		Workers:      DefaultWorkers,
		Backlog:      DefaultBacklog,
		Jail:         true,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		StopTimeout:  DefaultStopTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}
