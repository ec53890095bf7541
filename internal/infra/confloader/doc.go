// Package confloader provides configuration loading mechanism.
//
// This package implements a flexible configuration loader that supports
// multiple sources and formats using koanf as the underlying library.
//
// Features:
//
//   - Multiple Sources: Files, environment variables, override maps
//   - Two Formats: YAML (.yaml, .yml) and the line-oriented directive format
//   - Watch Support: Debounced change notification for config files
//   - Type Safety: Unmarshaling into typed structs
//
// Priority (highest to lowest):
//
//  1. Overrides (command-line flags)
//  2. Environment variables
//  3. Configuration file
//  4. Default values
//
// Keys are flat. document_root in a YAML file, document-root in a directive
// file and FORKHTTPD_DOCUMENT_ROOT in the environment all name the same key.
package confloader
