// Command nzbgrabd is the CLI front end around the core engine: run starts
// the daemon, and add/ls/pause/resume/rm are thin clients of its persisted
// queue state (internal/nntp/coordinator, internal/nntp/queue). Grounded on
// the teacher's cmd package, stripped of the bubbletea TUI and HTTP/JSON-RPC
// transport (spec.md §1 non-goals).
package main

import "github.com/nzbgrab/nzbgrab/cmd/nzbgrabd/cmd"

func main() {
	cmd.Execute()
}
