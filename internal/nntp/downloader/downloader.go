// Package downloader implements ArticleDownloader (spec.md §4.6): one task
// per in-flight article, driving NNTP state AUTH -> GROUP -> BODY, feeding
// the yEnc decoder, and reporting a terminal outcome.
//
// Grounded directly on internal/engine/concurrent/worker.go's retry loop
// and active-task tracking, re-themed from HTTP byte-range requests to NNTP
// BODY streaming.
package downloader

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nzbgrab/nzbgrab/internal/nntp/cache"
	"github.com/nzbgrab/nzbgrab/internal/nntp/connection"
	"github.com/nzbgrab/nzbgrab/internal/nntp/nzbconfig"
	"github.com/nzbgrab/nzbgrab/internal/nntp/yenc"
)

// Outcome is an ArticleDownloader's terminal result (spec.md §4.6 state
// diagram: "Start -> Authenticate? -> Group -> RequestBody -> Stream ->
// (Finished | Failed | Retry)").
type Outcome int

const (
	OutcomeFinished Outcome = iota
	OutcomeFailed
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "Finished"
	case OutcomeFailed:
		return "Failed"
	case OutcomeRetry:
		return "Retry"
	default:
		return "Unknown"
	}
}

// FailureKind classifies why an article did not finish (spec.md §7).
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureAuthRejected
	FailureGroupMissing
	FailureArticleNotFound
	FailureCorrupt
	FailureCancelled
	FailureIO
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuthRejected:
		return "AuthRejected"
	case FailureGroupMissing:
		return "GroupMissing"
	case FailureArticleNotFound:
		return "ArticleNotFound"
	case FailureCorrupt:
		return "Corrupt"
	case FailureCancelled:
		return "Cancelled"
	case FailureIO:
		return "Io"
	default:
		return "None"
	}
}

// Result is what Run reports back to the Coordinator.
type Result struct {
	Outcome         Outcome
	Failure         FailureKind
	Err             error
	SegmentData     []byte
	SegmentOffset   int64
	CRC32           uint32
	ResultFilename  string
	DownloadedBytes int64
}

// Article is the minimal request the downloader needs; the Coordinator
// builds this from a queue.ArticleInfo/FileInfo pair so this package does
// not need to import queue (avoiding a dependency cycle back through
// cache/events).
type Article struct {
	MessageID     string
	Group         string
	JoinGroup     bool
	SegmentOffset int64
	FileID        string
	ExpectedSize  int
}

// ArticleDownloader drives one article's download over a borrowed
// Connection.
type ArticleDownloader struct {
	conn    *connection.Connection
	server  nzbconfig.NewsServer
	article Article
	cache   *cache.Cache
	cfg     *nzbconfig.Core

	lastUpdate atomic.Int64 // unix nanos, for Coordinator's hang detection
	downloaded atomic.Int64
	cancelled  atomic.Bool
}

// New builds an ArticleDownloader for one article over an already-connected
// conn (the Coordinator owns acquiring/releasing it via ServerPool).
func New(conn *connection.Connection, server nzbconfig.NewsServer, article Article, cache *cache.Cache, cfg *nzbconfig.Core) *ArticleDownloader {
	d := &ArticleDownloader{conn: conn, server: server, article: article, cache: cache, cfg: cfg}
	d.touch()
	return d
}

func (d *ArticleDownloader) touch() { d.lastUpdate.Store(time.Now().UnixNano()) }

// LastUpdate reports when this downloader last made progress, for the
// Coordinator's stuck-downloader detection (health.go).
func (d *ArticleDownloader) LastUpdate() time.Time {
	return time.Unix(0, d.lastUpdate.Load())
}

// DownloadedBytes reports bytes streamed so far.
func (d *ArticleDownloader) DownloadedBytes() int64 { return d.downloaded.Load() }

// Cancel requests the in-flight Run to stop as soon as it next checks.
func (d *ArticleDownloader) Cancel() {
	d.cancelled.Store(true)
	d.conn.Cancel()
}

// Run executes the full state machine for one article.
func (d *ArticleDownloader) Run(ctx context.Context) Result {
	if d.cancelled.Load() {
		return Result{Outcome: OutcomeRetry, Failure: FailureCancelled}
	}

	if d.server.User != "" && !d.conn.Authenticated {
		if res, ok := d.authenticate(); !ok {
			return res
		}
	}

	if d.server.JoinGroup && d.article.Group != "" {
		if res, ok := d.joinGroup(); !ok {
			return res
		}
	}

	return d.requestAndStream()
}

func (d *ArticleDownloader) authenticate() (Result, bool) {
	if err := d.conn.WriteLine(fmt.Sprintf("AUTHINFO USER %s", d.server.User)); err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}, false
	}
	line, err := d.conn.ReadLine()
	if err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}, false
	}
	code := responseCode(line)
	if code == 281 || code == 200 {
		d.conn.Authenticated = true
		return Result{}, true
	}
	if code != 381 {
		return Result{Outcome: OutcomeFailed, Failure: FailureAuthRejected, Err: fmt.Errorf("AUTHINFO USER: %s", line)}, false
	}

	if err := d.conn.WriteLine(fmt.Sprintf("AUTHINFO PASS %s", d.server.Pass)); err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}, false
	}
	line, err = d.conn.ReadLine()
	if err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}, false
	}
	code = responseCode(line)
	if code == 281 || code == 200 {
		d.conn.Authenticated = true
		return Result{}, true
	}
	return Result{Outcome: OutcomeFailed, Failure: FailureAuthRejected, Err: fmt.Errorf("AUTHINFO PASS: %s", line)}, false
}

func (d *ArticleDownloader) joinGroup() (Result, bool) {
	if err := d.conn.WriteLine(fmt.Sprintf("GROUP %s", d.article.Group)); err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}, false
	}
	line, err := d.conn.ReadLine()
	if err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}, false
	}
	code := responseCode(line)
	switch {
	case code == 211:
		return Result{}, true
	case code == 411 || code == 412:
		return Result{Outcome: OutcomeRetry, Failure: FailureGroupMissing, Err: fmt.Errorf("GROUP: %s", line)}, false
	default:
		return Result{Outcome: OutcomeRetry, Failure: FailureGroupMissing, Err: fmt.Errorf("GROUP: %s", line)}, false
	}
}

func (d *ArticleDownloader) requestAndStream() Result {
	if err := d.conn.WriteLine(fmt.Sprintf("BODY <%s>", d.article.MessageID)); err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}
	}
	line, err := d.conn.ReadLine()
	if err != nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err}
	}
	code := responseCode(line)
	switch {
	case code == 430:
		return Result{Outcome: OutcomeFailed, Failure: FailureArticleNotFound, Err: fmt.Errorf("BODY: %s", line)}
	case code == 400 || code == 500:
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: fmt.Errorf("BODY: %s", line)}
	case code >= 200 && code < 300:
		// fall through to streaming
	default:
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: fmt.Errorf("BODY: %s", line)}
	}

	return d.stream()
}

// stream reads the multi-line BODY response until a lone "." terminator,
// feeding each line through the yEnc decoder into a cache-allocated buffer.
//
// The cache only ever sees whole-buffer charges: buf's len is always the
// amount currently charged to the file in ArticleCache, and `used` tracks
// how much of it actually holds decoded data, so Free/Realloc calls never
// need to reason about a partially-filled buffer.
func (d *ArticleDownloader) stream() Result {
	dec := yenc.NewDecoder()
	var haveBegin, haveEnd bool
	var end *yenc.EndHeader
	var beginName string

	buf := d.cache.Alloc(d.article.FileID, maxInt(d.article.ExpectedSize, 4096))
	if buf == nil {
		return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: fmt.Errorf("article cache stopped")}
	}
	used := 0

	fail := func(res Result) Result {
		d.cache.Free(d.article.FileID, buf)
		return res
	}

	var lineBuf []byte
	for {
		if d.cancelled.Load() {
			return fail(Result{Outcome: OutcomeRetry, Failure: FailureCancelled})
		}
		line, err := d.conn.ReadLine()
		if err != nil {
			return fail(Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: err})
		}
		d.touch()

		if line == "." {
			break
		}
		if !haveBegin && len(line) > 7 && line[:7] == "=ybegin" {
			haveBegin = true
			if h, err := yenc.ParseYBegin(line); err == nil {
				beginName = h.Name
			}
			continue
		}
		if len(line) > 6 && line[:6] == "=ypart" {
			continue
		}
		if len(line) > 5 && line[:5] == "=yend" {
			haveEnd = true
			if h, err := yenc.ParseYEnd(line); err == nil {
				end = h
			}
			continue
		}

		lineBuf = dec.DecodeLine(lineBuf, []byte(line))
		if used+len(lineBuf) > len(buf) {
			newSize := len(buf) * 2
			for newSize < used+len(lineBuf) {
				newSize *= 2
			}
			grown := d.cache.Realloc(d.article.FileID, buf, newSize)
			if grown == nil {
				return Result{Outcome: OutcomeRetry, Failure: FailureIO, Err: fmt.Errorf("article cache stopped")}
			}
			buf = grown
		}
		copy(buf[used:], lineBuf)
		used += len(lineBuf)
		d.downloaded.Add(int64(len(lineBuf)))
	}

	if !haveBegin || !haveEnd {
		kind := yenc.KindMissingYBegin
		if haveBegin {
			kind = yenc.KindMissingYEnd
		}
		return fail(Result{Outcome: OutcomeFailed, Failure: FailureCorrupt, Err: &yenc.Error{Kind: kind, Msg: "article body"}})
	}

	crc := dec.CRC32()
	if end != nil && ((end.HasPCRC && end.PCRC32 != crc) || (!end.HasPCRC && end.HasCRC && end.CRC32 != crc)) {
		return fail(Result{Outcome: OutcomeFailed, Failure: FailureCorrupt, Err: &yenc.Error{Kind: yenc.KindCrcMismatch, Msg: "article body"}})
	}

	// Shrink the charged buffer down to exactly what was decoded before
	// handing it off, so the cache's accounting reflects real usage.
	final := d.cache.Realloc(d.article.FileID, buf, used)
	if final == nil {
		final = buf[:used]
	}

	return Result{
		Outcome:         OutcomeFinished,
		SegmentData:     final,
		SegmentOffset:   d.article.SegmentOffset,
		CRC32:           crc,
		ResultFilename:  beginName,
		DownloadedBytes: d.downloaded.Load(),
	}
}

func responseCode(line string) int {
	if len(line) < 3 {
		return 0
	}
	n, err := strconv.Atoi(line[:3])
	if err != nil {
		return 0
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
