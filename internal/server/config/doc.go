// Package config provides the configuration record of forkhttpd.
//
// This package defines the record and its validation:
//
//   - config.go: Config struct definition
//   - default.go: Default configuration values
//   - verify.go: Normalization and validation (paths, ranges, formats)
//   - load.go: Loading from defaults, file, environment and overrides
//   - record.go: Encoding for the generation process, log rendering
//
// Configuration is loaded via internal/infra/confloader. Files ending in
// .yaml or .yml are YAML; any other file uses the directive format:
//
//	document-root /srv/www
//	index-page /index.html
//	user www
//	group www
package config
