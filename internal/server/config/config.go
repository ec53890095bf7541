// Package config defines the server configuration structure.
package config

import "time"

// Config is the configuration record of one server generation. It is
// immutable once loaded; a reload builds a new record from scratch.
type Config struct {
	// DocumentRoot is the directory served as "/". Required.
	DocumentRoot string `koanf:"document_root" yaml:"document_root"`

	// IndexPage is served for "/". Always starts with a slash.
	IndexPage string `koanf:"index_page" yaml:"index_page"`

	// Host is the bind address. Empty binds every interface.
	Host string `koanf:"host" yaml:"host,omitempty"`

	// Port is a port number or a service name such as "http".
	Port string `koanf:"port" yaml:"port"`

	// LogPath receives log output. Empty logs to stderr, or to /dev/null
	// once detached.
	LogPath string `koanf:"log_path" yaml:"log_path,omitempty"`

	// User and Group name the account the server drops to. Both must be set
	// for a drop to happen.
	User  string `koanf:"user" yaml:"user,omitempty"`
	Group string `koanf:"group" yaml:"group,omitempty"`

	// ConfigFile is the file the record was loaded from. Reload is only
	// possible when it is set. It comes from the command line, never from
	// a file or the environment.
	ConfigFile string `koanf:"-" yaml:"config_file,omitempty"`

	// Workers is the size of the worker pool.
	Workers int `koanf:"workers" yaml:"workers"`

	// Backlog is the listen queue length.
	Backlog int `koanf:"backlog" yaml:"backlog"`

	// Jail confines the server to DocumentRoot with chroot.
	Jail bool `koanf:"jail" yaml:"jail"`

	LogLevel  string `koanf:"log_level" yaml:"log_level"`
	LogFormat string `koanf:"log_format" yaml:"log_format"`

	// MetricsAddr is the host:port of the Prometheus endpoint. Empty
	// disables it.
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr,omitempty"`

	// ControlSocket is the path of the manager's control socket. Empty
	// disables it.
	ControlSocket string `koanf:"control_socket" yaml:"control_socket,omitempty"`

	// Watch reloads when ConfigFile changes on disk.
	Watch bool `koanf:"watch" yaml:"watch"`

	// StopTimeout bounds a generation's teardown and the manager's wait
	// before it kills a generation that will not exit.
	StopTimeout time.Duration `koanf:"stop_timeout" yaml:"stop_timeout"`

	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
}

// Address returns the host:port the server listens on, unresolved.
func (c *Config) Address() string {
	return joinHostPort(c.Host, c.Port)
}

// CanReload reports whether the record names a file to reload from.
func (c *Config) CanReload() bool {
	return c.ConfigFile != ""
}

// Credentials reports the configured user and group, and whether both are
// set.
func (c *Config) Credentials() (user, group string, ok bool) {
	return c.User, c.Group, c.User != "" && c.Group != ""
}
