package cmd

import (
	"fmt"
	"strings"

	"github.com/nzbgrab/nzbgrab/internal/nntp/state"
)

// resolveNzbID resolves a partial ID (prefix) to a full NZB ID against the
// persisted snapshot, grounded on the teacher's resolveDownloadID.
func resolveNzbID(store *state.Store, partial string) (string, error) {
	if len(partial) >= 32 {
		return partial, nil
	}
	nzbs, err := store.ListNzbs()
	if err != nil {
		return partial, nil
	}
	var matches []string
	for _, n := range nzbs {
		if strings.HasPrefix(n.ID, partial) {
			matches = append(matches, n.ID)
		}
	}
	switch len(matches) {
	case 0:
		return partial, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous ID prefix %q matches %d NZBs", partial, len(matches))
	}
}
