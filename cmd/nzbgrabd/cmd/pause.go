package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nzbgrab/nzbgrab/internal/nntp/state"
)

var pauseAll bool

var pauseCmd = &cobra.Command{
	Use:   "pause <ID>",
	Short: "Pause a queued NZB",
	Long:  `Pause an NZB by ID, or every NZB with --all.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !pauseAll && len(args) == 0 {
			fatalf("Error: provide an NZB ID or use --all")
		}
		runPauseResume(args, pauseAll, "pause", "pause-all")
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	pauseCmd.Flags().BoolVar(&pauseAll, "all", false, "pause every queued NZB")
}

// runPauseResume implements both pause.go and resume.go: if a daemon is
// running, drop an editCommand into the incoming directory (the live-process
// analogue of the teacher's HTTP POST); otherwise edit the persisted
// snapshot directly, mirroring cmd/pause.go's "offline mode: update DB
// directly" fallback branch.
func runPauseResume(args []string, all bool, op, allOp string) {
	if daemonRunning() {
		if err := ensureStateDirs(); err != nil {
			fatalf("Error: %v", err)
		}
		effectiveOp := op
		var nzbID string
		if all {
			effectiveOp = allOp
		} else {
			nzbID = args[0]
		}
		data, _ := json.Marshal(map[string]string{"op": effectiveOp, "nzbId": nzbID})
		name := fmt.Sprintf("%s-%s.cmd.json", effectiveOp, uuid.NewString())
		if err := writeAtomic(incomingDir(), name, data); err != nil {
			fatalf("Error queuing command: %v", err)
		}
		fmt.Println("Queued for the running daemon.")
		return
	}

	store, err := state.Open(dbPath())
	if err != nil {
		fatalf("Error opening state database: %v", err)
	}
	defer store.Close()

	paused := op == "pause"
	if all {
		if err := store.SetAllNzbsPaused(paused); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Println("All NZBs updated (offline mode).")
		return
	}

	id, err := resolveNzbID(store, args[0])
	if err != nil {
		fatalf("Error: %v", err)
	}
	if err := store.SetNzbPaused(id, paused); err != nil {
		fatalf("Error: %v", err)
	}
	fmt.Printf("Updated %s (offline mode).\n", shortID(id))
}
