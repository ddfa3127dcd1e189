package markup

import (
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	fsys := fstest.MapFS{
		"layout.mu":         {Data: []byte(`Layout(title: String) { title { @title } }`)},
		"parts/card.mu":     {Data: []byte(`Card(x: i32) { .card { @x } } Badge { "b" }`)},
		"parts/readme.txt":  {Data: []byte(`not a template`)},
		"parts/empty/.keep": {Data: nil},
	}
	e, err := NewEngine(fsys)
	require.NoError(t, err)

	assert.Equal(t, []string{"Badge", "Card", "Layout"}, e.Templates())
	assert.Equal(t, []string{"layout.mu", "parts/card.mu"}, e.Files())
	require.NotNil(t, e.Lookup("Card"))
	assert.Nil(t, e.Lookup("Nope"))

	out, err := e.RenderString("Card", Fields{"x": 3})
	require.NoError(t, err)
	assert.Equal(t, `<div class="card">3</div>`, out)

	var sb strings.Builder
	require.NoError(t, e.Render(&sb, "Layout", map[string]any{"title": "a<b"}))
	assert.Equal(t, `<title>a&lt;b</title>`, sb.String())

	_, err = e.RenderString("Nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
	assert.ErrorIs(t, e.Render(&sb, "Nope", nil), ErrUnknownTemplate)
}

func TestEngineExtension(t *testing.T) {
	fsys := fstest.MapFS{
		"a.html.mu": {Data: []byte(`A { "a" }`)},
		"b.tpl":     {Data: []byte(`B { "b" }`)},
	}
	e, err := NewEngine(fsys, WithExtension(".tpl"))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, e.Templates())
}

func TestEngineParseOptions(t *testing.T) {
	fsys := fstest.MapFS{"a.mu": {Data: []byte(`A { {twice("x")} }`)}}
	e, err := NewEngine(fsys, WithParseOptions(WithFuncs(Funcs{"twice": func(s string) string { return s + s }})))
	require.NoError(t, err)
	out, err := e.RenderString("A", nil)
	require.NoError(t, err)
	assert.Equal(t, "xx", out)
}

func TestEngineLoadErrors(t *testing.T) {
	_, err := NewEngine(fstest.MapFS{"bad.mu": {Data: []byte(`A {`)}})
	require.True(t, IsParseError(err))
	assert.ErrorContains(t, err, `compiling template "bad.mu"`)

	_, err = NewEngine(fstest.MapFS{
		"a.mu": {Data: []byte(`A { "1" }`)},
		"b.mu": {Data: []byte(`A { "2" }`)},
	})
	assert.EqualError(t, err, `template A declared in both "a.mu" and "b.mu"`)
}

func TestEngineKeepsTemplatesOnFailedReload(t *testing.T) {
	fsys := fstest.MapFS{"a.mu": {Data: []byte(`A { "1" }`)}}
	e, err := NewEngine(fsys)
	require.NoError(t, err)

	fsys["a.mu"] = &fstest.MapFile{Data: []byte(`A {`)}
	require.Error(t, e.Load())
	out, err := e.RenderString("A", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", out)

	fsys["a.mu"] = &fstest.MapFile{Data: []byte(`A { "2" }`)}
	require.NoError(t, e.Load())
	out, err = e.RenderString("A", nil)
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestEngineWatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.mu", `Page { "v1" }`)

	cfg := DefaultConfig()
	cfg.Watch = true
	cfg.WatchDebounce = 20 * time.Millisecond
	e, err := NewEngineDir(dir, WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	var reloads atomic.Int32
	var failed atomic.Bool
	e.OnReload(func(file string, err error) {
		reloads.Add(1)
		if err != nil {
			failed.Store(true)
		}
	})

	writeFile(t, dir, "page.mu", `Page { "v2" }`)
	require.Eventually(t, func() bool {
		out, err := e.RenderString("Page", nil)
		return err == nil && out == "v2"
	}, 5*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "sub/extra.mu", `Extra { "x" }`)
	require.Eventually(t, func() bool { return e.Lookup("Extra") != nil }, 5*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "page.mu", `Page {`)
	require.Eventually(t, func() bool { return failed.Load() }, 5*time.Second, 10*time.Millisecond)
	out, err := e.RenderString("Page", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", out)
	assert.Positive(t, reloads.Load())
}

func TestWatchRequiresDirectory(t *testing.T) {
	e, err := NewEngine(fstest.MapFS{})
	require.NoError(t, err)
	_, err = e.Watch(time.Millisecond)
	assert.EqualError(t, err, "engine has no directory to watch")
	assert.NoError(t, e.Close())
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	e, err := NewEngineDir(t.TempDir())
	require.NoError(t, err)
	w, err := e.Watch(time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.NoError(t, e.Close())
}
