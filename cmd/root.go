// Package cmd wires groupfs's mount/unmount/version subcommands with
// spf13/cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time via -ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "groupfs",
	Short:   "groupfs mounts a graph of groups and files as a navigable directory tree",
	Version: fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
