// Package cmd is nzbgrabd's command-line front end: a thin wrapper around
// the core's QueueEditor/Coordinator that stays deliberately dumb, since the
// HTTP/JSON-RPC server and TUI the teacher built around its engine are both
// out of scope here (spec.md §1). Grounded on the teacher's cmd package
// shape (root.go's rootCmd + subcommand init() registration, lock.go's
// single-instance flock), with the HTTP transport and bubbletea TUI
// branches of root.go's Run removed rather than adapted: nothing in
// SPEC_FULL.md names a transport for this CLI to speak.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nzbgrabd",
	Short: "A Usenet binary download engine",
	Long:  `nzbgrabd schedules NNTP article fetches across a tiered server pool, decodes yEnc, and reassembles files.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", defaultStateDir(), "directory holding the lock file, database, and incoming queue")
	cobra.OnInitialize(func() {
		if stateDir == "" {
			stateDir = defaultStateDir()
		}
	})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
