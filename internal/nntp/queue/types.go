// Package queue holds the DownloadQueue data model (spec.md §3): NzbInfo,
// FileInfo, ArticleInfo, and CompletedFile, plus the QueueEditor (§4.7) that
// mutates them under a single lock.
//
// Arena-style string IDs (minted with github.com/google/uuid) replace the
// raw C++ owner pointers the original implementation used, per the REDESIGN
// FLAGS: callers pass IDs around instead of object references, and the
// DownloadQueue is the only place that resolves an ID to a live struct.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nzbgrab/nzbgrab/internal/nntp/events"
)

// ArticleStatus is one article's lifecycle state.
type ArticleStatus int

const (
	ArticleUndefined ArticleStatus = iota
	ArticleRunning
	ArticleFinished
	ArticleFailed
)

// PartialState describes a file's on-disk completion state.
type PartialState int

const (
	PartialNone PartialState = iota
	PartialPartial
	PartialCompleted
)

// DeleteStatus is a NzbInfo's deletion intent.
type DeleteStatus int

const (
	DeleteNone DeleteStatus = iota
	DeleteManual
	DeleteHealth
	DeleteDupe
)

// DirectRenameStatus tracks the multi-phase "rename by reading yEnc headers"
// workflow GetNextArticle's step 4 participates in.
type DirectRenameStatus int

const (
	DirectRenameNone DirectRenameStatus = iota
	DirectRenameRunning
	DirectRenameDone
)

// NzbKind distinguishes a fully-ingested NZB from a URL placeholder awaiting
// fetch (SPEC_FULL.md §6.1).
type NzbKind int

const (
	KindNzb NzbKind = iota
	KindURL
)

// DupeMode is an NzbInfo's duplicate-handling mode, set through
// GroupSetDupeMode; AddNzbFileToQueue does not consult it.
type DupeMode int

const (
	DupeModeScore DupeMode = iota
	DupeModeAll
	DupeModeForce
)

// CompletedFileStatus is the terminal outcome recorded for a finished file.
type CompletedFileStatus int

const (
	CompletedNone CompletedFileStatus = iota
	CompletedSuccess
	CompletedPartial
	CompletedFailure
)

// ServerStats accumulates per-server byte counters (spec.md §6 NzbInfo /
// FileInfo "serverStats").
type ServerStats struct {
	mu      sync.Mutex
	bytes   map[int]int64
}

// Add credits n bytes to serverID's running total.
func (s *ServerStats) Add(serverID int, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bytes == nil {
		s.bytes = make(map[int]int64)
	}
	s.bytes[serverID] += n
}

// Snapshot returns a copy of the per-server byte totals.
func (s *ServerStats) Snapshot() map[int]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int64, len(s.bytes))
	for k, v := range s.bytes {
		out[k] = v
	}
	return out
}

// ArticleInfo is one article (segment) of a FileInfo (spec.md §3).
type ArticleInfo struct {
	ID              string
	PartNumber      int
	MessageID       string
	Size            int64
	Status          ArticleStatus
	ResultFilename  string
	SegmentOffset   int64
	SegmentData     []byte // owned transfer target: ArticleCache -> ArticleWriter
	CRC             uint32
}

// FileInfo is one file within an NzbInfo (spec.md §3).
type FileInfo struct {
	ID               string
	Filename         string
	Origname         string
	Size             int64
	RemainingSize    int64
	Articles         []*ArticleInfo
	Paused           bool
	Deleted          bool
	ActiveDownloads  int
	ParFile          bool
	OutputFilename   string
	PartialState     PartialState
	CRC              uint32
	Hash16k          uint32
	ServerStats      ServerStats
	ForceDirectWrite bool

	// NzbID is a weak back-reference, resolved through the owning
	// DownloadQueue rather than held as a pointer.
	NzbID string

	ExtraPriority bool
	Checked       bool // GetNextArticle step 6: no undefined articles left

	// PostedAt is the article post time from the NZB's <date> attribute,
	// used for the propagation-delay wait (spec.md §4.8, §9).
	PostedAt time.Time

	// DupeDeleted marks a file cancelled because its confirmed name
	// collided with another file already present in destDir (spec.md §4.8
	// "Duplicate file detection").
	DupeDeleted bool
}

// CompletedFile is the terminal record kept on the owning NzbInfo after a
// FileInfo finishes (spec.md §3).
type CompletedFile struct {
	ID       string
	Filename string
	Origname string
	Status   CompletedFileStatus
	CRC      uint32
	Hash16k  uint32
	ParFile  bool
	ParSetID string
}

// NzbInfo is one queued NZB collection (spec.md §3).
type NzbInfo struct {
	ID                string
	Name              string
	Category          string
	DestDir           string
	Priority          int
	ExtraPriority      bool
	DupeKey           string
	DupeMode          DupeMode
	DupeScore         int
	Size              int64
	RemainingSize     int64
	PausedSize        int64
	TotalArticles     int
	SuccessArticles   int
	FailedArticles    int
	Kind              NzbKind
	DeleteStatus      DeleteStatus
	DirectRenameStatus DirectRenameStatus
	ServerStats       ServerStats
	CompletedFiles    []*CompletedFile

	Files []*FileInfo

	Paused       bool
	HealthPaused bool
	Parking      bool

	// URL-kind placeholder fields (SPEC_FULL.md §6.1).
	URL string
}

// Health returns successArticles/totalArticles as a permille (0-1000).
func (n *NzbInfo) Health() int {
	if n.TotalArticles == 0 {
		return 1000
	}
	return (n.SuccessArticles * 1000) / n.TotalArticles
}

// NewID mints an arena-style identifier (REDESIGN FLAGS: no raw pointers).
func NewID() string { return uuid.NewString() }

// DownloadQueue is the process-global list of NzbInfos, guarded by one lock
// (spec.md §3, §5). All mutation — queue membership and progress counters
// alike — happens under Mu.
type DownloadQueue struct {
	Mu      sync.Mutex
	Items   []*NzbInfo
	History []*NzbInfo

	Dispatcher events.Dispatcher

	cond   *sync.Cond
	closed bool
}

// NewDownloadQueue builds an empty queue ready for use.
func NewDownloadQueue() *DownloadQueue {
	q := &DownloadQueue{}
	q.cond = sync.NewCond(&q.Mu)
	return q
}

// WakeUp notifies any goroutine blocked in WaitFor (spec.md §4.8 step 4).
func (q *DownloadQueue) WakeUp() {
	q.Mu.Lock()
	q.cond.Broadcast()
	q.Mu.Unlock()
}

// WaitFor blocks up to timeout or until WakeUp/Close is called. Caller must
// NOT hold Mu.
func (q *DownloadQueue) WaitFor(timeout time.Duration) {
	q.Mu.Lock()
	defer q.Mu.Unlock()
	if q.closed {
		return
	}
	timer := time.AfterFunc(timeout, q.WakeUp)
	defer timer.Stop()
	q.cond.Wait()
}

// Close unblocks any waiter permanently (used during shutdown).
func (q *DownloadQueue) Close() {
	q.Mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.Mu.Unlock()
}

// FindNzb returns the NzbInfo with the given ID, or nil. Caller must hold Mu.
func (q *DownloadQueue) FindNzb(id string) *NzbInfo {
	for _, n := range q.Items {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// FindFile returns the FileInfo with the given ID across all queued NZBs, or
// nil. Caller must hold Mu.
func (q *DownloadQueue) FindFile(id string) (*FileInfo, *NzbInfo) {
	for _, n := range q.Items {
		for _, f := range n.Files {
			if f.ID == id {
				return f, n
			}
		}
	}
	return nil, nil
}
