package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var want = map[string]any{
	"title": "Hello",
	"count": int64(3),
	"ratio": 0.5,
	"tags":  []any{"a", "b"},
	"user":  map[string]any{"name": "Ann", "admin": true},
}

func TestDecodeFormatsAgree(t *testing.T) {
	docs := map[Format]string{
		JSON: `{"title": "Hello", "count": 3, "ratio": 0.5, "tags": ["a", "b"], "user": {"name": "Ann", "admin": true}}`,
		YAML: `
title: Hello
count: 3
ratio: 0.5
tags: [a, b]
user:
  name: Ann
  admin: true
`,
		TOML: `
title = "Hello"
count = 3
ratio = 0.5
tags = ["a", "b"]

[user]
name = "Ann"
admin = true
`,
	}
	for f, doc := range docs {
		t.Run(string(f), func(t *testing.T) {
			got, err := Decode(strings.NewReader(doc), f)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	got, err := Decode(strings.NewReader("  \n"), YAML)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(strings.NewReader(`{`), JSON)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(`a = `), TOML)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(`a: 1`), Format("xml"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{
		"a.json": JSON, "a.YAML": YAML, "dir/a.yml": YAML, "a.toml": TOML,
	} {
		got, err := FormatOf(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatOf("a.ini")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(p, []byte("items:\n  - name: x\n    price: 2\n"), 0o644))

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"items": []any{map[string]any{"name": "x", "price": int64(2)}},
	}, got)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[1"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "decoding "+bad)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
