package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nzbgrab/nzbgrab/internal/nntp/queue"
)

// editCommand is the JSON shape pause/resume/rm drop into the incoming
// directory when a daemon is already running, the live-process analogue of
// the teacher's HTTP POST to /pause, /resume, /delete. `run` applies it
// through queue.Editor, the same closed set of mutations spec.md §4.7 names.
type editCommand struct {
	Op    string `json:"op"` // "pause", "resume", "delete", "pause-all", "resume-all"
	NzbID string `json:"nzbId,omitempty"`
}

func loadEditCommand(path string) (*editCommand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c editCommand
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse edit command %s: %w", path, err)
	}
	return &c, nil
}

// apply runs the command through ed, operating at NZB granularity (this CLI
// has no file-level selection UI, unlike the full QueueEditor surface).
func (c *editCommand) apply(ed *queue.Editor) error {
	switch c.Op {
	case "pause":
		return ed.GroupPause(c.NzbID)
	case "resume":
		return ed.GroupResume(c.NzbID)
	case "delete":
		return ed.GroupDelete(c.NzbID)
	case "pause-all", "resume-all":
		ed.Queue.Mu.Lock()
		ids := make([]string, 0, len(ed.Queue.Items))
		for _, n := range ed.Queue.Items {
			ids = append(ids, n.ID)
		}
		ed.Queue.Mu.Unlock()
		for _, id := range ids {
			var err error
			if c.Op == "pause-all" {
				err = ed.GroupPause(id)
			} else {
				err = ed.GroupResume(id)
			}
			if err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown edit op %q", c.Op)
	}
}
