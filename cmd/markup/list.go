package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list PATH...",
		Short: "List the templates declared in template units",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collect(args, a.cfg.Extension)
			if err != nil {
				return err
			}
			units, err := compile(files)
			if err != nil {
				return err
			}

			type row struct {
				sig, file string
				hint      int
			}
			var rows []row
			width := 0
			for _, u := range units {
				if u.err != nil {
					a.diag.Print(u.path, u.src, u.err)
					return errReported
				}
				for _, t := range u.set.Templates() {
					r := row{signature(t), u.path, t.SizeHint()}
					width = max(width, len(r.sig))
					rows = append(rows, r)
				}
			}
			out := cmd.OutOrStdout()
			for _, r := range rows {
				fmt.Fprintf(out, "%-*s  %s  %d\n", width, r.sig, r.file, r.hint)
			}
			return nil
		},
	}
}
