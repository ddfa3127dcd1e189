package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check PATH...",
		Short: "Compile template units and report errors",
		Long: `Compile every unit named on the command line, walking directories for
files with the configured extension, and print a diagnostic for each unit
that fails. Template names must be unique across the checked files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.check(cmd, args)
		},
	}
}

func (a *app) check(cmd *cobra.Command, paths []string) error {
	files, err := collect(paths, a.cfg.Extension)
	if err != nil {
		return err
	}
	units, err := compile(files)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	owner := map[string]string{}
	for _, u := range units {
		if u.err != nil {
			failed++
			a.diag.Print(u.path, u.src, u.err)
			continue
		}
		dup := false
		for _, t := range u.set.Templates() {
			if prev, ok := owner[t.Name()]; ok {
				a.diag.Print(u.path, "", fmt.Errorf("template %s already declared in %s", t.Name(), prev))
				dup = true
				continue
			}
			owner[t.Name()] = u.path
		}
		if dup {
			failed++
			continue
		}
		fmt.Fprintf(out, "ok  %s (%d templates)\n", u.path, len(u.set.Templates()))
	}
	a.log.Debug().Int("files", len(units)).Int("failed", failed).Msg("Check finished")

	if len(units) == 0 {
		return fmt.Errorf("no %s files found", a.cfg.Extension)
	}
	if failed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d files failed\n", failed, len(units))
		return errReported
	}
	return nil
}
