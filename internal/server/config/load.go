// Package config defines the server configuration structure.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/yndnr/forkhttpd/internal/infra/confloader"
)

// ConfigError reports a configuration that could not be loaded or is
// invalid.
type ConfigError struct {
	// Path is the configuration file involved, if any.
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return "config " + e.Path + ": " + e.Err.Error()
	}
	return "config: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadOptions selects the sources of a configuration record.
type LoadOptions struct {
	// File is the configuration file. Optional.
	File string

	// Overrides win over every other source. Keys are the koanf keys of
	// Config, for example "document_root".
	Overrides map[string]any

	// EnvPrefix selects environment variables. Empty means
	// confloader.DefaultEnvPrefix.
	EnvPrefix string
}

// Load builds a configuration record from defaults, the file, the
// environment and the overrides, in increasing priority. Unknown keys are
// rejected. The record is normalized and verified. Every failure is a
// *ConfigError.
func Load(opts LoadOptions) (*Config, error) {
	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = confloader.DefaultEnvPrefix
	}

	l := confloader.NewLoader(
		confloader.WithEnvPrefix(prefix),
		confloader.WithConfigFile(opts.File),
		confloader.WithDefaults(toMap(Default())),
		confloader.WithOverrides(opts.Overrides),
	)

	cfg := &Config{}
	if err := l.Load(cfg); err != nil {
		return nil, &ConfigError{Path: opts.File, Err: err}
	}
	if unknown := l.UnknownKeys(KnownKeys()); len(unknown) > 0 {
		return nil, &ConfigError{
			Path: opts.File,
			Err:  fmt.Errorf("unknown parameter %s", strings.Join(unknown, ", ")),
		}
	}

	cfg.ConfigFile = opts.File
	if err := Normalize(cfg); err != nil {
		return nil, &ConfigError{Path: opts.File, Err: err}
	}
	if err := Verify(cfg); err != nil {
		return nil, &ConfigError{Path: opts.File, Err: err}
	}
	return cfg, nil
}

// Reload re-derives a record from path and the environment only. Values
// that came from the command line at startup are not carried over.
func Reload(path string) (*Config, error) {
	if path == "" {
		return nil, &ConfigError{Err: fmt.Errorf("reload requested without a configuration file")}
	}
	return Load(LoadOptions{File: path})
}

// KnownKeys returns every key a configuration source may set.
func KnownKeys() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if key := koanfKey(t.Field(i)); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// toMap flattens a record into koanf keys.
func toMap(cfg *Config) map[string]any {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	m := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if key := koanfKey(t.Field(i)); key != "" {
			m[key] = v.Field(i).Interface()
		}
	}
	return m
}

func koanfKey(f reflect.StructField) string {
	key := f.Tag.Get("koanf")
	if key == "-" {
		return ""
	}
	return key
}
