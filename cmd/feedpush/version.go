package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "feedpush %s (%s)\n", Version, Commit)
			if bi, ok := debug.ReadBuildInfo(); ok {
				fmt.Fprintf(out, "  go: %s\n", bi.GoVersion)
			}
		},
	}
}
