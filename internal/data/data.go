// Package data loads render data for the markup command from JSON, YAML or
// TOML documents. Every format decodes to the same shape: string-keyed maps,
// slices and scalars, with whole numbers as int64.
package data

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format names a supported document syntax.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// ErrUnsupported is returned for a file extension or format name that no
// decoder handles.
var ErrUnsupported = errors.New("unsupported data format")

// FormatOf picks a format by file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
}

// Load reads and decodes the file at path. "-" reads JSON from stdin.
func Load(path string) (map[string]any, error) {
	if path == "-" {
		return Decode(os.Stdin, JSON)
	}
	f, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	m, err := Decode(fh, f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return m, nil
}

// Decode reads one document of the given format. An empty document yields
// an empty map.
func Decode(r io.Reader, f Format) (map[string]any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return m, nil
	}
	switch f {
	case JSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
	case YAML:
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	case TOML:
		if err := toml.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, f)
	}
	return normalize(m).(map[string]any), nil
}

// normalize converts decoder-specific scalars and containers so that all
// formats agree.
func normalize(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = normalize(e)
		}
		return v
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range v {
			v[i] = normalize(e)
		}
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case int:
		return int64(v)
	}
	return v
}
