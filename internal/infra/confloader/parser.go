// Package confloader provides configuration loading mechanism.
package confloader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMarshalNotSupported is returned by the directive parser's Marshal.
var ErrMarshalNotSupported = errors.New("confloader: directive format is read-only")

// Directive reads the line-oriented configuration format:
//
//	# comment
//	document-root /srv/www
//	index-page    /home.html
//	watch
//
// Each line holds a key, whitespace, and the rest of the line as its value.
// A key without a value is a boolean switch set to true. Hyphens in keys
// become underscores so that document-root and document_root are the same
// key. Double quotes around a value are removed.
type Directive struct{}

// DirectiveParser returns the koanf parser for the directive format.
func DirectiveParser() *Directive {
	return &Directive{}
}

// Unmarshal parses directive lines into a flat map.
func (p *Directive) Unmarshal(b []byte) (map[string]any, error) {
	out := make(map[string]any)

	sc := bufio.NewScanner(bytes.NewReader(b))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value := line, ""
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			key, value = line[:i], line[i+1:]
		}
		key = NormalizeKey(key)
		if !validKey(key) {
			return nil, fmt.Errorf("line %d: invalid key %q", lineNo, key)
		}

		value = strings.TrimSpace(value)
		if value == "" {
			out[key] = true
			continue
		}
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		out[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal is not supported.
func (p *Directive) Marshal(map[string]any) ([]byte, error) {
	return nil, ErrMarshalNotSupported
}

// NormalizeKey lowercases a key and turns hyphens into underscores.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// FormatDirectives renders a flat map in the directive format, keys sorted.
// Boolean true values are written as bare keys; false values are omitted.
func FormatDirectives(values map[string]any) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		switch v := values[k].(type) {
		case bool:
			if v {
				fmt.Fprintln(&buf, k)
			}
		default:
			fmt.Fprintf(&buf, "%s %v\n", k, v)
		}
	}
	return buf.Bytes()
}
