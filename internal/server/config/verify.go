// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/forkhttpd/internal/telemetry/logger"
)

// Normalize fills in derived values: an absolute DocumentRoot and an
// IndexPage that starts with a slash.
func Normalize(cfg *Config) error {
	if cfg.DocumentRoot != "" {
		abs, err := filepath.Abs(cfg.DocumentRoot)
		if err != nil {
			return fmt.Errorf("document_root: %w", err)
		}
		cfg.DocumentRoot = abs
	}
	if cfg.IndexPage != "" && !strings.HasPrefix(cfg.IndexPage, "/") {
		cfg.IndexPage = "/" + cfg.IndexPage
	}
	if cfg.ConfigFile != "" {
		abs, err := filepath.Abs(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("config_file: %w", err)
		}
		cfg.ConfigFile = abs
	}
	return nil
}

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyServe(cfg); err != nil {
		return err
	}
	if err := verifyListen(cfg); err != nil {
		return err
	}
	return verifyRuntime(cfg)
}

func verifyServe(cfg *Config) error {
	if cfg.DocumentRoot == "" {
		return errors.New("document_root is required")
	}
	info, err := os.Stat(cfg.DocumentRoot)
	if err != nil {
		return fmt.Errorf("document_root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document_root %s is not a directory", cfg.DocumentRoot)
	}
	if cfg.IndexPage == "" || cfg.IndexPage == "/" {
		return errors.New("index_page must name a file")
	}
	return nil
}

func verifyListen(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.Backlog < 1 {
		return errors.New("backlog must be at least 1")
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
	}
	return nil
}

func verifyRuntime(cfg *Config) error {
	if cfg.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if !logger.ValidLevel(cfg.LogLevel) {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format %q is not one of json, text", cfg.LogFormat)
	}
	if cfg.StopTimeout <= 0 || cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if cfg.Watch && cfg.ConfigFile == "" {
		return errors.New("watch requires a configuration file")
	}
	return nil
}

func joinHostPort(host, port string) string {
	return net.JoinHostPort(host, port)
}
