package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nzbgrab/nzbgrab/internal/nntp/queue"
	"github.com/nzbgrab/nzbgrab/internal/nntp/state"
)

var lsJSON bool

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List queued NZBs",
	Long: `List reads the persisted queue snapshot from the state database.
Grounded on the teacher's cmd/ls.go database-fallback path: since this core
has no HTTP/JSON-RPC transport to query a running daemon's live memory
(spec.md §1 non-goals), ls always reads the same on-disk snapshot the
daemon keeps up to date.`,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := state.Open(dbPath())
		if err != nil {
			fatalf("Error opening state database: %v", err)
		}
		defer store.Close()

		nzbs, err := store.ListNzbs()
		if err != nil {
			fatalf("Error listing NZBs: %v", err)
		}
		printNzbs(nzbs)
	},
}

func printNzbs(nzbs []state.NzbRecord) {
	if len(nzbs) == 0 {
		if lsJSON {
			fmt.Println("[]")
		} else {
			fmt.Println("No NZBs queued.")
		}
		return
	}

	if lsJSON {
		data, _ := json.MarshalIndent(nzbs, "", "  ")
		fmt.Println(string(data))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRIORITY\tSTATUS")
	fmt.Fprintln(w, "--\t----\t--------\t--------\t------")
	for _, n := range nzbs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", shortID(n.ID), n.Name, n.Category, n.Priority, nzbStatus(n))
	}
	w.Flush()
}

func nzbStatus(n state.NzbRecord) string {
	switch queue.DeleteStatus(n.DeleteStatus) {
	case queue.DeleteManual, queue.DeleteHealth, queue.DeleteDupe:
		return "deleting"
	}
	if n.Paused {
		return "paused"
	}
	return "active"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "output in JSON format")
}
