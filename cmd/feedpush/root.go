package main

import (
	"os"

	"github.com/spf13/cobra"

	"feedpush/internal/app"
)

// defaultConfigPath is used when --config is not given and the file exists.
const defaultConfigPath = "feedpush.yaml"

type rootOptions struct {
	configPath string
	logLevel   string
}

func (o *rootOptions) appOptions() app.Options {
	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	return app.Options{ConfigPath: path, LogLevel: o.logLevel}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	run := newRunCmd(opts)

	root := &cobra.Command{
		Use:   "feedpush",
		Short: "Push new RSS entries to a chat",
		Long: `feedpush polls one RSS/Atom feed, picks entries newer than the stored
watermark and posts each to a chat through the bot HTTP API, with the
first image of the linked page when one can be found.

Without a subcommand it performs a single run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          run.RunE,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML or JSON config (default ./"+defaultConfigPath+" if present, else environment only)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(run, newDaemonCmd(opts), newStateCmd(opts), newVersionCmd())
	return root
}
