// Duplicate-filename detection: a bloom-filter pre-check guards the exact
// map lookup behind the Coordinator's DupeCheck, grounded on
// github.com/bits-and-blooms/bloom/v3's false-positive-only guarantee (a hit
// always needs confirming against the real set; a miss is conclusive).
// Within-NZB dedupe at ingestion (DedupeWithinNzb) uses a plain map.
package queue

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nzbgrab/nzbgrab/internal/nntp/events"
)

// FilenameIndex tracks which filenames already exist in a destDir (or are
// already queued for it), backing the Coordinator's cross-NZB DupeCheck
// (spec.md §4.8 "Duplicate file detection").
type FilenameIndex struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	exact  map[string]map[string]bool // destDir -> filename -> present
}

// NewFilenameIndex sizes the bloom filter for an expected number of
// filenames at a target false-positive rate.
func NewFilenameIndex(expectedFilenames uint, falsePositiveRate float64) *FilenameIndex {
	return &FilenameIndex{
		filter: bloom.NewWithEstimates(expectedFilenames, falsePositiveRate),
		exact:  make(map[string]map[string]bool),
	}
}

func key(destDir, filename string) string { return destDir + "\x00" + filename }

// Seen reports whether filename is already known for destDir.
func (idx *FilenameIndex) Seen(destDir, filename string) bool {
	k := key(destDir, filename)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.filter.TestString(k) {
		return false
	}
	return idx.exact[destDir][filename]
}

// Add records filename as present for destDir.
func (idx *FilenameIndex) Add(destDir, filename string) {
	k := key(destDir, filename)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.filter.AddString(k)
	if idx.exact[destDir] == nil {
		idx.exact[destDir] = make(map[string]bool)
	}
	idx.exact[destDir][filename] = true
}

// Remove forgets filename for destDir (the bloom filter itself cannot
// un-learn a key, so a stale positive there just falls through to the exact
// map, which is authoritative).
func (idx *FilenameIndex) Remove(destDir, filename string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.exact[destDir], filename)
}

// DedupeWithinNzb implements spec.md §6's AddNzbFileToQueue rule: "remove
// smaller duplicates when exactly two entries share a filename; keep all
// when three or more do." It mutates files in place, returning the
// surviving slice.
func DedupeWithinNzb(files []*FileInfo) []*FileInfo {
	byName := make(map[string][]*FileInfo)
	for _, f := range files {
		byName[f.Filename] = append(byName[f.Filename], f)
	}

	drop := make(map[string]bool)
	for _, group := range byName {
		if len(group) != 2 {
			continue
		}
		smaller := group[0]
		if group[1].Size < smaller.Size {
			smaller = group[1]
		}
		drop[smaller.ID] = true
	}
	if len(drop) == 0 {
		return files
	}

	out := files[:0]
	for _, f := range files {
		if !drop[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// AddNzbFileToQueue ingests a fully-constructed NzbInfo (spec.md §6): it
// deduplicates filenames within the NZB, fires NzbFound then NzbAdded, and
// inserts the result into q (at the front if addFirst). It returns nil, and
// moves the NZB straight to history instead, when the caller-supplied
// onAdded callback returns false (e.g. a DupeCheck policy).
func AddNzbFileToQueue(q *DownloadQueue, nzb *NzbInfo, addFirst bool, onAdded func(*NzbInfo) bool) *NzbInfo {
	nzb.Files = DedupeWithinNzb(nzb.Files)
	for _, f := range nzb.Files {
		f.NzbID = nzb.ID
	}
	recomputeAggregates(nzb)

	q.Mu.Lock()
	defer q.Mu.Unlock()

	q.Dispatcher.Emit(events.Event{Aspect: events.NzbFound, NzbID: nzb.ID})

	if onAdded != nil && !onAdded(nzb) {
		q.History = append(q.History, nzb)
		return nil
	}

	if addFirst {
		q.Items = append([]*NzbInfo{nzb}, q.Items...)
	} else {
		q.Items = append(q.Items, nzb)
	}
	q.Dispatcher.Emit(events.Event{Aspect: events.NzbAdded, NzbID: nzb.ID})
	return nzb
}
