package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedpush/internal/app"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the feed once and deliver new entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: fetched=%d admitted=%d delivered=%d failed=%d deferred=%d watermark=%s (%s)\n",
				rep.RunID, rep.Fetched, rep.Admitted, rep.Delivered, rep.Failed, rep.Deferred, rep.Watermark, rep.Duration().Round(time.Millisecond))
			return rep.Err
		},
	}
}

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Poll on the configured schedule until interrupted",
		Long: `Runs once immediately, then on daemon.schedule (an interval such as "5m"
or a cron expression). The config file is watched and valid edits are
applied without a restart, except storage settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunDaemon(cmd.Context())
		},
	}
}
