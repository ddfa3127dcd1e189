package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/oarkflow/markup"
	"github.com/oarkflow/markup/internal/diag"
	"github.com/oarkflow/markup/internal/logging"
)

// errReported marks a failure whose diagnostics were already printed.
var errReported = errors.New("errors reported")

// app is the state shared by every command of one invocation.
type app struct {
	verbosity  int
	configPath string

	cfg  *markup.Config
	log  zerolog.Logger
	diag *diag.Printer
}

// NewRootCmd builds the markup command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "markup",
		Short: "Compile, check and render markup templates",
		Long: `markup compiles template units written in the markup language and
renders them to HTML with data from JSON, YAML or TOML files.

Configuration is read from --config, or else from markup/config.toml
(or config.yaml) in the XDG config directories, and MARKUP_* environment
variables override it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/markup/config.toml)")

	root.AddCommand(newRenderCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = discoverConfig()
	}
	cfg, err := markup.LoadConfig(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(cmd.ErrOrStderr(), a.verbosity, cfg.LogLevel)
	a.log = logging.Get("cli")
	markup.SetLogger(logging.Get("markup"))
	a.diag = diag.New(cmd.ErrOrStderr())

	a.log.Debug().Str("command", cmd.Name()).Str("config", path).Msg("Command started")
	return nil
}

// discoverConfig returns the first markup config file found in the XDG
// config directories, or "".
func discoverConfig() string {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		if p, err := xdg.SearchConfigFile(filepath.Join("markup", name)); err == nil {
			return p
		}
	}
	return ""
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "markup version %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}
