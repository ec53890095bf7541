// Package config defines the server configuration structure.
package config

import (
	"bytes"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// Encode serializes a record for a generation process.
func Encode(cfg *Config) ([]byte, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return b, nil
}

// Decode parses a record produced by Encode and verifies it. Unknown
// fields are an error.
func Decode(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("decode: %w", err)}
	}
	if err := Verify(cfg); err != nil {
		return nil, &ConfigError{Path: cfg.ConfigFile, Err: err}
	}
	return cfg, nil
}

// LogValue implements slog.LogValuer.
func (c *Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("document_root", c.DocumentRoot),
		slog.String("index_page", c.IndexPage),
		slog.String("address", c.Address()),
		slog.Int("workers", c.Workers),
		slog.Bool("jail", c.Jail),
	}
	if c.ConfigFile != "" {
		attrs = append(attrs, slog.String("config_file", c.ConfigFile))
	}
	if user, group, ok := c.Credentials(); ok {
		attrs = append(attrs, slog.String("user", user), slog.String("group", group))
	}
	if c.MetricsAddr != "" {
		attrs = append(attrs, slog.String("metrics_addr", c.MetricsAddr))
	}
	return slog.GroupValue(attrs...)
}
