package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nzbgrab/nzbgrab/internal/nntp/state"
)

var rmClean bool

var rmCmd = &cobra.Command{
	Use:     "rm <ID>",
	Aliases: []string{"kill"},
	Short:   "Remove a queued NZB",
	Long:    `Remove an NZB by ID, or sweep delete-marked NZBs from the persisted snapshot with --clean.`,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if !rmClean && len(args) == 0 {
			fatalf("Error: provide an NZB ID or use --clean")
		}

		if rmClean {
			store, err := state.Open(dbPath())
			if err != nil {
				fatalf("Error opening state database: %v", err)
			}
			defer store.Close()
			n, err := store.RemoveDeleteMarkedNzbs()
			if err != nil {
				fatalf("Error: %v", err)
			}
			fmt.Printf("Removed %d delete-marked NZB(s).\n", n)
			return
		}

		if daemonRunning() {
			if err := ensureStateDirs(); err != nil {
				fatalf("Error: %v", err)
			}
			data, _ := json.Marshal(map[string]string{"op": "delete", "nzbId": args[0]})
			name := fmt.Sprintf("delete-%s.cmd.json", uuid.NewString())
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

		id, err := resolveNzbID(store, args[0])
		if err != nil {
			fatalf("Error: %v", err)
		}
		if err := store.RemoveNzb(id); err != nil {
			fatalf("Error: %v", err)
		}
		fmt.Printf("Removed %s (offline mode).\n", shortID(id))
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVar(&rmClean, "clean", false, "remove delete-marked NZBs from the persisted snapshot")
}
