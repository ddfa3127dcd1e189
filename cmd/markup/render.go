package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oarkflow/markup"
	"github.com/oarkflow/markup/internal/data"
)

type renderOptions struct {
	dataFile string
	set      []string
	out      string
	fragment bool
	watch    bool
}

func newRenderCmd(a *app) *cobra.Command {
	var o renderOptions
	cmd := &cobra.Command{
		Use:   "render PATH [TEMPLATE]",
		Short: "Render a template to HTML",
		Long: `Render a template from the unit at PATH, or from the template directory
PATH, with fields taken from --data and --set.

A unit declaring a single template renders it without naming it. With
--fragment the file is an anonymous node sequence whose free names are
filled from the data. With --watch, a directory is re-rendered whenever a
template file changes, until interrupted.`,
		Example: `  markup render page.mu -d page.yaml
  markup render templates/ Page -d page.toml -o index.html
  markup render card.mu --fragment --set title=Hello`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			return a.render(cmd, args[0], name, o)
		},
	}
	cmd.Flags().StringVarP(&o.dataFile, "data", "d", "", "data file (.json, .yaml, .yml, .toml, or - for JSON on stdin)")
	cmd.Flags().StringArrayVar(&o.set, "set", nil, "set a string field, key=value (repeatable)")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&o.fragment, "fragment", false, "treat the file as an anonymous fragment")
	cmd.Flags().BoolVarP(&o.watch, "watch", "w", false, "re-render a directory when its templates change")
	return cmd
}

func (o renderOptions) fields() (map[string]any, error) {
	fields := map[string]any{}
	if o.dataFile != "" {
		m, err := data.Load(o.dataFile)
		if err != nil {
			return nil, err
		}
		fields = m
	}
	for _, kv := range o.set {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		fields[k] = v
	}
	return fields, nil
}

func (a *app) render(cmd *cobra.Command, path, name string, o renderOptions) error {
	fields, err := o.fields()
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if o.fragment {
			return errors.New("--fragment needs a file, not a directory")
		}
		if name == "" {
			return errors.New("name the template to render from a directory")
		}
		return a.renderDir(cmd, path, name, fields, o)
	}
	if o.watch {
		return errors.New("--watch needs a template directory")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	src := string(b)

	var r func(io.Writer) error
	if o.fragment {
		f, err := markup.New(src, markup.Vars(fields))
		if err != nil {
			a.diag.Print(path, src, err)
			return errReported
		}
		r = f.Render
	} else {
		set, err := markup.Parse(src)
		if err != nil {
			a.diag.Print(path, src, err)
			return errReported
		}
		t, err := pick(set, name)
		if err != nil {
			return err
		}
		r = func(w io.Writer) error { return t.Render(w, fields) }
	}
	if err := a.emit(cmd, o.out, r); err != nil {
		a.diag.Print(path, src, err)
		return errReported
	}
	return nil
}

func (a *app) renderDir(cmd *cobra.Command, dir, name string, fields map[string]any, o renderOptions) error {
	cfg := *a.cfg
	cfg.Watch = cfg.Watch || o.watch
	e, err := markup.NewEngineDir(dir, markup.WithConfig(&cfg))
	if err != nil {
		a.diag.Print(dir, "", err)
		return errReported
	}
	defer e.Close()

	run := func() error {
		return a.emit(cmd, o.out, func(w io.Writer) error { return e.Render(w, name, fields) })
	}
	if err := run(); err != nil {
		a.diag.Print(name, "", err)
		if !cfg.Watch {
			return errReported
		}
	}
	if !cfg.Watch {
		return nil
	}

	a.log.Info().Str("dir", dir).Msg("Watching for changes")
	e.OnReload(func(file string, err error) {
		if err != nil {
			a.diag.Print(file, "", err)
			return
		}
		if err := run(); err != nil {
			a.diag.Print(name, "", err)
			return
		}
		a.log.Info().Str("file", file).Msg("Re-rendered")
	})
	<-contextOf(cmd).Done()
	return nil
}

// emit renders into the --out file, or stdout when it is empty.
func (a *app) emit(cmd *cobra.Command, out string, render func(io.Writer) error) error {
	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	if err := render(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return &markup.WriteError{Err: err}
	}
	if out != "" {
		a.log.Info().Str("out", out).Msg("Rendered")
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
