package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"feedpush/internal/app"
	"feedpush/internal/identity"
)

func newStateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the delivery watermark",
	}

	var recent int
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the watermark and the latest delivery attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Store().Load(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rec.Watermark == 0 {
				fmt.Fprintln(out, "watermark: none")
			} else {
				fmt.Fprintf(out, "watermark: %s (updated %s)\n", rec.Watermark, rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			if recent <= 0 {
				return nil
			}
			entries, err := a.Store().RecentDeliveries(cmd.Context(), recent)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tID\tMODE\tOK\tLINK")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", e.At.Local().Format("01-02 15:04:05"), e.ID, e.Mode, e.OK, e.Link)
			}
			return tw.Flush()
		},
	}
	show.Flags().IntVarP(&recent, "recent", "n", 10, "number of journal entries to list")

	set := &cobra.Command{
		Use:   "set <id>",
		Short: "Overwrite the watermark (0 clears it, so everything in the feed is resent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid id %q: want a non-negative integer", args[0])
			}
			a, err := app.New(opts.appOptions())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Store().Reset(cmd.Context(), identity.ID(n)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watermark set to %d\n", n)
			return nil
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
