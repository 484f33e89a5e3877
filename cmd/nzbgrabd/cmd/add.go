package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <nzb-descriptor.json>...",
	Short: "Add one or more NZB descriptors to the running daemon's queue",
	Long: `Add hands one or more already-parsed NZB descriptors (JSON; see
descriptor.go) to a running nzbgrabd daemon by dropping them into its
incoming directory, mirroring the teacher's HTTP POST to /download without
the HTTP server this core does not speak.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !daemonRunning() {
			fatalf("Error: nzbgrabd is not running against %s\nStart it first with 'nzbgrabd run --config <file>'.", stateDir)
		}
		if err := ensureStateDirs(); err != nil {
			fatalf("Error: %v", err)
		}

		count := 0
		for _, path := range args {
			if _, err := loadNzbDescriptor(path); err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
				continue
			}
			name := fmt.Sprintf("%s-%s.nzb.json", uuid.NewString(), filepath.Base(path))
			if err := writeAtomic(incomingDir(), name, data); err != nil {
				fmt.Fprintf(os.Stderr, "Error queuing %s: %v\n", path, err)
				continue
			}
			count++
		}

		if count > 0 {
			fmt.Printf("Queued %d NZB descriptor(s).\n", count)
		}
		if count < len(args) {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
