package confloader

import "errors"

var errMapProvider = errors.New("confloader: map provider has no byte form")

// mapProvider feeds defaults and overrides to koanf. koanf calls Read for
// providers without a parser.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errMapProvider
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
