package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/oarkflow/markup"
)

// unit is one template source file and, once compiled, its templates.
type unit struct {
	path string
	src  string
	set  *markup.Set
	err  error
}

// collect expands paths into template files. Directories are walked for
// files with ext; files named explicitly are taken whatever their extension.
func collect(paths []string, ext string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ext) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// compile parses every file. Read failures abort; parse failures are kept
// on the unit.
func compile(files []string) ([]*unit, error) {
	units := make([]*unit, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		u := &unit{path: f, src: string(b)}
		u.set, u.err = markup.Parse(u.src)
		units = append(units, u)
	}
	return units, nil
}

// pick selects the template to render from set: the named one, or the only
// one when no name is given.
func pick(set *markup.Set, name string) (*markup.Template, error) {
	if name != "" {
		if t := set.Lookup(name); t != nil {
			return t, nil
		}
		return nil, fmt.Errorf("%w %q (have %s)", markup.ErrUnknownTemplate, name, names(set))
	}
	ts := set.Templates()
	if len(ts) == 1 {
		return ts[0], nil
	}
	return nil, fmt.Errorf("name the template to render, one of %s", names(set))
}

func names(set *markup.Set) string {
	var ns []string
	for _, t := range set.Templates() {
		ns = append(ns, t.Name())
	}
	if len(ns) == 0 {
		return "none"
	}
	return strings.Join(ns, ", ")
}

// signature formats a template's declaration head.
func signature(t *markup.Template) string {
	fields := t.Fields()
	if len(fields) == 0 {
		return t.Name()
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + ": " + f.Type
	}
	return t.Name() + "(" + strings.Join(parts, ", ") + ")"
}
