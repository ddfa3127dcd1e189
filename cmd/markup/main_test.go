package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/markup"
)

// isolate points the XDG config lookup at empty directories and returns the
// config home.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("XDG_CONFIG_DIRS", t.TempDir())
	xdg.Reload()
	return home
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const badSrc = "A {\n\tp { ` }\n}"

func TestVersion(t *testing.T) {
	isolate(t)
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "markup version dev")
	assert.Contains(t, out, "commit: none")
}

func TestRenderFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	page := write(t, dir, "page.mu", `
Page(title: String, items: Vec<String>) {
	h1 { @title }
	ul { @for i in items { li { @i } } }
}`)
	data := write(t, dir, "page.yaml", "title: Hi & bye\nitems: [a, b]\n")

	out, _, err := run(t, "render", page, "-d", data)
	require.NoError(t, err)
	assert.Equal(t, `<h1>Hi &amp; bye</h1><ul><li>a</li><li>b</li></ul>`, out)

	out, _, err = run(t, "render", page, "Page", "-d", data, "--set", "title=<x>")
	require.NoError(t, err)
	assert.Equal(t, `<h1>&lt;x&gt;</h1><ul><li>a</li><li>b</li></ul>`, out)
}

func TestRenderPicksTemplate(t *testing.T) {
	isolate(t)
	p := write(t, t.TempDir(), "two.mu", `A { "a" } B { "b" }`)

	out, _, err := run(t, "render", p, "B")
	require.NoError(t, err)
	assert.Equal(t, "b", out)

	_, _, err = run(t, "render", p)
	assert.EqualError(t, err, "name the template to render, one of A, B")

	_, _, err = run(t, "render", p, "C")
	assert.ErrorIs(t, err, markup.ErrUnknownTemplate)
}

func TestRenderFragment(t *testing.T) {
	isolate(t)
	p := write(t, t.TempDir(), "frag.mu", `p { @greeting }`)
	out, _, err := run(t, "render", p, "--fragment", "--set", "greeting=<hi>")
	require.NoError(t, err)
	assert.Equal(t, `<p>&lt;hi&gt;</p>`, out)

	_, _, err = run(t, "render", p, "--fragment", "--set", "nope")
	assert.EqualError(t, err, `invalid --set "nope", want key=value`)
}

func TestRenderDirectoryToFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	write(t, dir, "parts/card.mu", `Card(n: i32) { .card { @n } }`)
	write(t, dir, "notes.txt", `ignored`)
	data := write(t, t.TempDir(), "card.toml", "n = 4\n")
	dest := filepath.Join(t.TempDir(), "out.html")

	out, _, err := run(t, "render", dir, "Card", "-d", data, "-o", dest)
	require.NoError(t, err)
	assert.Empty(t, out)
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, `<div class="card">4</div>`, string(b))

	_, _, err = run(t, "render", dir)
	assert.EqualError(t, err, "name the template to render from a directory")
	_, _, err = run(t, "render", dir, "Card", "--fragment")
	assert.EqualError(t, err, "--fragment needs a file, not a directory")
}

func TestRenderReportsDiagnostics(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	bad := write(t, dir, "bad.mu", badSrc)
	_, stderr, err := run(t, "render", bad)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "bad.mu:2:6: parse error: unexpected character\n")
	assert.Contains(t, stderr, " 2 | \tp { ` }\n")

	calc := write(t, dir, "calc.mu", "A(a: i32, b: i32) {\n  p { {a / b} }\n}")
	data := write(t, dir, "calc.json", `{"a": 1, "b": 0}`)
	_, stderr, err = run(t, "render", calc, "-d", data)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "calc.mu:2:")
	assert.Contains(t, stderr, "eval error: integer division by zero\n")
	assert.Contains(t, stderr, " 2 |   p { {a / b} }\n")

	_, _, err = run(t, "render", filepath.Join(dir, "missing.mu"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheck(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	good := write(t, dir, "good.mu", `A { "a" } B { "b" }`)
	write(t, dir, "sub/bad.mu", badSrc)

	out, stderr, err := run(t, "check", dir)
	assert.ErrorIs(t, err, errReported)
	assert.Equal(t, "ok  "+good+" (2 templates)\n", out)
	assert.Contains(t, stderr, "bad.mu:2:6: parse error")
	assert.Contains(t, stderr, "1 of 2 files failed\n")

	out, _, err = run(t, "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok  ")

	_, _, err = run(t, "check", t.TempDir())
	assert.EqualError(t, err, "no .mu files found")
}

func TestCheckDuplicateNames(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	first := write(t, dir, "a.mu", `A { "1" }`)
	write(t, dir, "b.mu", `A { "2" }`)

	_, stderr, err := run(t, "check", dir)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "b.mu: error: template A already declared in "+first)
}

func TestList(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	card := write(t, dir, "card.mu", `Card(x: i32, label: &str) { .card { @x } } Badge { "b" }`)

	out, _, err := run(t, "list", dir)
	require.NoError(t, err)
	assert.Equal(t,
		fmt.Sprintf("%-25s  %s  %d\n", "Card(x: i32, label: &str)", card, len(`{ .card { @x } }`))+
			fmt.Sprintf("%-25s  %s  %d\n", "Badge", card, len(`{ "b" }`)), out)

	write(t, dir, "zz.mu", badSrc)
	_, stderr, err := run(t, "list", dir)
	assert.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "zz.mu:2:6: parse error")
}

func TestConfigDiscovery(t *testing.T) {
	home := isolate(t)
	write(t, home, "markup/config.toml", "extension = \".tpl\"\n")
	dir := t.TempDir()
	write(t, dir, "a.mu", badSrc)
	tpl := write(t, dir, "a.tpl", `A { "a" }`)

	out, _, err := run(t, "check", dir)
	require.NoError(t, err)
	assert.Equal(t, "ok  "+tpl+" (1 templates)\n", out)
}

func TestConfigFlag(t *testing.T) {
	isolate(t)
	_, _, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.toml"), "version")
	assert.ErrorContains(t, err, "failed to load config")

	cfg := write(t, t.TempDir(), "markup.yaml", "log_level: loud\n")
	_, _, err = run(t, "--config", cfg, "version")
	assert.ErrorContains(t, err, `unknown log_level "loud"`)
}
