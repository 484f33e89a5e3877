// Package coordinator implements the QueueCoordinator (spec.md §4.8): the
// single scheduling loop that drives GetNextArticle selection, spawns
// ArticleDownloaders over ServerPool connections, detects file completion,
// enforces health thresholds, and persists partial state.
//
// Grounded on internal/engine/concurrent/downloader.go's Download()
// orchestration: a monitor/balancer/health-check goroutine trio running
// alongside a worker pool, re-themed here from HTTP byte-range scheduling to
// NNTP article scheduling across tiered servers.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nzbgrab/nzbgrab/internal/nntp/cache"
	"github.com/nzbgrab/nzbgrab/internal/nntp/connection"
	"github.com/nzbgrab/nzbgrab/internal/nntp/downloader"
	"github.com/nzbgrab/nzbgrab/internal/nntp/events"
	"github.com/nzbgrab/nzbgrab/internal/nntp/metrics"
	"github.com/nzbgrab/nzbgrab/internal/nntp/nzbconfig"
	"github.com/nzbgrab/nzbgrab/internal/nntp/queue"
	"github.com/nzbgrab/nzbgrab/internal/nntp/serverpool"
	"github.com/nzbgrab/nzbgrab/internal/nntp/state"
	"github.com/nzbgrab/nzbgrab/internal/nntp/writer"
	"github.com/nzbgrab/nzbgrab/internal/nzbutil"
)

const (
	housekeepInterval = time.Second
	standbyWait       = 2 * time.Second
	noConnectionWait  = time.Second
)

// fileWriterState serializes ArticleWriter access across the concurrent
// downloaders that may be streaming different articles of the same file.
type fileWriterState struct {
	mu    sync.Mutex
	w     *writer.ArticleWriter
	parts []writer.PartInfo
}

// active tracks one in-flight ArticleDownloader.
type active struct {
	dl     *downloader.ArticleDownloader
	fileID string
	nzbID  string
	level  int
	cancel context.CancelFunc
}

// Coordinator is the QueueCoordinator (spec.md §4.8).
type Coordinator struct {
	cfg     *nzbconfig.Core
	queue   *queue.DownloadQueue
	pool    *serverpool.Pool
	cache   *cache.Cache
	store   *state.Store
	metrics *metrics.Registry
	dedupe  *queue.FilenameIndex

	tmpDir         string
	downloadsLimit int

	mu      sync.Mutex
	actives map[string]*active          // article ID -> active
	writers map[string]*fileWriterState // file ID -> writer state
	retries map[string]int              // article ID -> retry attempts so far

	tempPaused atomic.Bool
	stopping   atomic.Bool
	stopOnce   sync.Once

	wg sync.WaitGroup
}

// New builds a Coordinator. downloadsLimit bounds concurrent ArticleDownloaders
// process-wide (spec.md §4.8 step 2 "active downloads < downloadsLimit").
func New(cfg *nzbconfig.Core, q *queue.DownloadQueue, pool *serverpool.Pool, c *cache.Cache, store *state.Store, reg *metrics.Registry, dedupe *queue.FilenameIndex, tmpDir string, downloadsLimit int) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		queue:          q,
		pool:           pool,
		cache:          c,
		store:          store,
		metrics:        reg,
		dedupe:         dedupe,
		tmpDir:         tmpDir,
		downloadsLimit: downloadsLimit,
		actives:        make(map[string]*active),
		writers:        make(map[string]*fileWriterState),
		retries:        make(map[string]int),
	}
}

// PauseAll temp-pauses scheduling of anything without file-level force
// priority (spec.md §4.8 step 2 "not temp-paused (or the file has force
// priority)").
func (c *Coordinator) PauseAll() {
	c.tempPaused.Store(true)
	c.queue.WakeUp()
}

// ResumeAll clears a prior PauseAll.
func (c *Coordinator) ResumeAll() {
	c.tempPaused.Store(false)
	c.queue.WakeUp()
}

// Stop requests the main loop exit, cancels every active downloader, and
// (once Run's deferred cleanup runs) flushes partial state and saves the
// queue (spec.md §5 "Cancellation semantics").
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)
		c.mu.Lock()
		actives := make([]*active, 0, len(c.actives))
		for _, a := range c.actives {
			actives = append(actives, a)
		}
		c.mu.Unlock()
		for _, a := range actives {
			a.dl.Cancel()
			a.cancel()
		}
		c.queue.WakeUp()
	})
}

// Run is the single dedicated scheduling worker (spec.md §4.8). It blocks
// until ctx is cancelled or Stop is called, then waits for every in-flight
// downloader to terminate before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	housekeepCtx, cancelHousekeep := context.WithCancel(ctx)
	c.wg.Add(1)
	go c.housekeepLoop(housekeepCtx)

	for ctx.Err() == nil && !c.stopping.Load() {
		article, file, nzb := c.getNextArticle()
		if article == nil {
			c.queue.WaitFor(standbyWait)
			continue
		}

		if c.activeCount() >= c.downloadsLimit || (c.tempPaused.Load() && !file.ExtraPriority) {
			c.unclaim(article, file)
			c.queue.WaitFor(noConnectionWait)
			continue
		}

		conn, server, level, ok := c.acquireConnection(ctx, file)
		if !ok {
			c.unclaim(article, file)
			select {
			case <-ctx.Done():
			case <-time.After(noConnectionWait):
			}
			continue
		}

		c.spawn(ctx, conn, server, level, article, file, nzb)
	}

	cancelHousekeep()
	c.wg.Wait()

	c.saveProgress()
	nzbutil.Debug("coordinator: stopped")
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

func (c *Coordinator) activeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actives)
}

// acquireConnection escalates from level 0 upward until a server accepts,
// respecting retention-day and per-(file,level) block timestamps (spec.md
// §4.2, §4.8 step 1).
func (c *Coordinator) acquireConnection(ctx context.Context, file *queue.FileInfo) (conn *connection.Connection, server nzbconfig.NewsServer, level int, ok bool) {
	var age time.Duration
	if !file.PostedAt.IsZero() {
		age = time.Since(file.PostedAt)
	}
	maxLevel := c.cfg.MaxLevel()
	for lvl := 0; lvl <= maxLevel; lvl++ {
		cn, err := c.pool.GetConnection(ctx, lvl, file.ID, age)
		if err != nil {
			continue
		}
		return cn, c.lookupServer(cn.ServerID), lvl, true
	}
	return nil, nzbconfig.NewsServer{}, 0, false
}

func (c *Coordinator) lookupServer(id int) nzbconfig.NewsServer {
	for _, s := range c.cfg.Servers {
		if s.ID == id {
			return s
		}
	}
	return nzbconfig.NewsServer{}
}

// getNextArticle implements spec.md §4.8's selection order, claiming the
// chosen article (status -> Running, file.ActiveDownloads++) before
// releasing the queue lock so no other scheduling pass can pick it twice.
func (c *Coordinator) getNextArticle() (*queue.ArticleInfo, *queue.FileInfo, *queue.NzbInfo) {
	c.queue.Mu.Lock()
	defer c.queue.Mu.Unlock()

	now := time.Now()

	var bestNzb *queue.NzbInfo
	for _, n := range c.queue.Items {
		if n.Kind != queue.KindNzb || n.DeleteStatus != queue.DeleteNone {
			continue
		}
		if n.Paused && !n.ExtraPriority {
			continue
		}
		if !anyEligibleFile(n) {
			continue
		}
		if bestNzb == nil || nzbHigherPriority(n, bestNzb) {
			bestNzb = n
		}
	}
	if bestNzb == nil {
		return nil, nil, nil
	}

	if c.directRenamePhase(bestNzb) {
		for _, f := range bestNzb.Files {
			if f.Paused || f.Deleted || f.Filename != "" {
				continue
			}
			if a := firstUndefinedArticle(f); a != nil {
				claimArticle(a, f)
				return a, f, bestNzb
			}
		}
	}

	files := append([]*queue.FileInfo(nil), bestNzb.Files...)
	sort.SliceStable(files, func(i, j int) bool { return fileHigherPriority(files[i], files[j]) })

	for _, f := range files {
		if f.Paused || f.Deleted || f.Checked {
			continue
		}
		if !f.PostedAt.IsZero() && f.PostedAt.Add(c.cfg.PropagationDelay).After(now) {
			continue
		}
		a := firstUndefinedArticle(f)
		if a == nil {
			f.Checked = true
			continue
		}
		claimArticle(a, f)
		return a, f, bestNzb
	}
	return nil, nil, nil
}

// directRenamePhase reports whether n is mid auto-naming disambiguation
// (spec.md §4.8 step 4), approximated here as Auto file naming combined with
// the NzbInfo's rename phase marker.
func (c *Coordinator) directRenamePhase(n *queue.NzbInfo) bool {
	return c.cfg.FileNaming == nzbconfig.FileNamingAuto && n.DirectRenameStatus == queue.DirectRenameRunning
}

func anyEligibleFile(n *queue.NzbInfo) bool {
	for _, f := range n.Files {
		if !f.Paused && !f.Deleted {
			return true
		}
	}
	return false
}

func nzbHigherPriority(a, b *queue.NzbInfo) bool {
	if a.ExtraPriority != b.ExtraPriority {
		return a.ExtraPriority
	}
	return a.Priority > b.Priority
}

// fileHigherPriority orders files within one NzbInfo by (extraPriority,
// nzbPriority); nzbPriority is constant within a single NzbInfo, so
// extraPriority is the only discriminator left (spec.md §4.8 step 3).
func fileHigherPriority(a, b *queue.FileInfo) bool {
	if a.ExtraPriority != b.ExtraPriority {
		return a.ExtraPriority
	}
	return false
}

func firstUndefinedArticle(f *queue.FileInfo) *queue.ArticleInfo {
	for _, a := range f.Articles {
		if a.Status == queue.ArticleUndefined {
			return a
		}
	}
	return nil
}

func claimArticle(a *queue.ArticleInfo, f *queue.FileInfo) {
	a.Status = queue.ArticleRunning
	f.ActiveDownloads++
}

// unclaim reverts a claim that could not be turned into a live downloader
// (no connection available, or the concurrency limit was hit).
func (c *Coordinator) unclaim(a *queue.ArticleInfo, f *queue.FileInfo) {
	c.queue.Mu.Lock()
	a.Status = queue.ArticleUndefined
	f.ActiveDownloads--
	c.queue.Mu.Unlock()
}

func (c *Coordinator) spawn(ctx context.Context, conn *connection.Connection, server nzbconfig.NewsServer, level int, article *queue.ArticleInfo, file *queue.FileInfo, nzb *queue.NzbInfo) {
	dctx, cancel := context.WithCancel(ctx)

	dl := downloader.New(conn, server, downloader.Article{
		MessageID:     article.MessageID,
		Group:         server.Group,
		JoinGroup:     server.JoinGroup,
		SegmentOffset: article.SegmentOffset,
		FileID:        file.ID,
		ExpectedSize:  int(article.Size),
	}, c.cache, c.cfg)

	a := &active{dl: dl, fileID: file.ID, nzbID: nzb.ID, level: level, cancel: cancel}
	c.mu.Lock()
	c.actives[article.ID] = a
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		res := dl.Run(dctx)

		keepAlive := res.Failure != downloader.FailureIO && res.Failure != downloader.FailureCancelled
		c.pool.FreeConnection(conn, keepAlive)

		c.mu.Lock()
		delete(c.actives, article.ID)
		c.mu.Unlock()

		c.processResult(nzb, file, article, server.Name, level, res)
	}()
}

// processResult applies one downloader's terminal Result to the queue
// (spec.md §4.8 "Completion detection", "Health check", failure model).
func (c *Coordinator) processResult(nzb *queue.NzbInfo, file *queue.FileInfo, article *queue.ArticleInfo, serverName string, level int, res downloader.Result) {
	switch res.Outcome {
	case downloader.OutcomeFinished:
		if res.ResultFilename != "" && file.Filename == "" {
			c.confirmFilename(nzb, file, res.ResultFilename)
		}
		if file.Deleted {
			// Dupe-cancelled or group-deleted mid-flight: drop the segment.
			c.cache.Free(file.ID, res.SegmentData)
			c.finishArticle(nzb, file, article, queue.ArticleFailed)
			return
		}
		if err := c.writeSegment(nzb, file, article, res); err != nil {
			nzbutil.Debug("coordinator: write segment %s/%d failed: %v", file.ID, article.PartNumber, err)
			c.finishArticle(nzb, file, article, queue.ArticleFailed)
			return
		}
		c.metrics.ArticleDownloaded(serverName, res.DownloadedBytes)
		c.finishArticle(nzb, file, article, queue.ArticleFinished)

	case downloader.OutcomeFailed:
		c.metrics.ArticleFailed(serverName, res.Failure.String())
		c.finishArticle(nzb, file, article, queue.ArticleFailed)

	case downloader.OutcomeRetry:
		c.metrics.Retry(res.Failure.String())
		if res.Failure == downloader.FailureGroupMissing {
			c.pool.BlockServer(file.ID, level, 30*time.Second)
		}
		c.handleRetry(nzb, file, article)
	}
}

// handleRetry requeues the article after ArticleInterval, unless
// ArticleRetries has been exhausted, in which case it is terminal Failed
// (spec.md §6 "ArticleRetries").
func (c *Coordinator) handleRetry(nzb *queue.NzbInfo, file *queue.FileInfo, article *queue.ArticleInfo) {
	c.mu.Lock()
	c.retries[article.ID]++
	attempts := c.retries[article.ID]
	c.mu.Unlock()

	if attempts > c.cfg.ArticleRetries {
		c.mu.Lock()
		delete(c.retries, article.ID)
		c.mu.Unlock()
		c.finishArticle(nzb, file, article, queue.ArticleFailed)
		return
	}

	c.queue.Mu.Lock()
	file.ActiveDownloads--
	c.queue.Mu.Unlock()

	interval := c.cfg.ArticleInterval
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		time.Sleep(interval)
		c.queue.Mu.Lock()
		article.Status = queue.ArticleUndefined
		file.Checked = false
		c.queue.Mu.Unlock()
		c.queue.WakeUp()
	}()
}

// finishArticle records a terminal status, decrements ActiveDownloads, and
// checks whether the owning file just completed.
func (c *Coordinator) finishArticle(nzb *queue.NzbInfo, file *queue.FileInfo, article *queue.ArticleInfo, status queue.ArticleStatus) {
	c.queue.Mu.Lock()
	article.Status = status
	file.ActiveDownloads--
	if status == queue.ArticleFinished {
		nzb.SuccessArticles++
	} else {
		nzb.FailedArticles++
	}
	done := file.ActiveDownloads == 0 && allTerminal(file) && (!file.Deleted || nzb.Parking)
	health := nzb.Health()
	c.queue.Mu.Unlock()

	if done {
		c.completeFile(nzb, file)
	}

	if health < c.cfg.CriticalHealth {
		c.applyHealthPolicy(nzb)
	}
}

func allTerminal(f *queue.FileInfo) bool {
	for _, a := range f.Articles {
		if a.Status != queue.ArticleFinished && a.Status != queue.ArticleFailed {
			return false
		}
	}
	return true
}

// writeSegment persists one finished article's decoded bytes through the
// file's ArticleWriter, serialized per-file since ArticleWriter is not safe
// for concurrent Start/Write/Finish calls (spec.md §4.5, §5 "Ordering
// guarantees: within a single file... deterministic").
func (c *Coordinator) writeSegment(nzb *queue.NzbInfo, file *queue.FileInfo, article *queue.ArticleInfo, res downloader.Result) error {
	fw := c.writerFor(nzb, file)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if err := fw.w.Start(article.ID, article.SegmentOffset, len(res.SegmentData)); err != nil {
		c.cache.Free(file.ID, res.SegmentData)
		return err
	}
	if err := fw.w.Write(res.SegmentData); err != nil {
		fw.w.Finish(false, article.PartNumber, 0)
		c.cache.Free(file.ID, res.SegmentData)
		return err
	}
	if err := fw.w.Finish(true, article.PartNumber, res.CRC32); err != nil {
		c.cache.Free(file.ID, res.SegmentData)
		return err
	}
	c.cache.Free(file.ID, res.SegmentData)
	fw.parts = append(fw.parts, writer.PartInfo{Part: article.PartNumber, ArticleID: article.ID})
	return nil
}

func (c *Coordinator) writerFor(nzb *queue.NzbInfo, file *queue.FileInfo) *fileWriterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fw, ok := c.writers[file.ID]; ok {
		return fw
	}
	suspectDupes := false
	for _, f := range nzb.Files {
		if f.ID != file.ID && f.Filename == file.Filename {
			suspectDupes = true
			break
		}
	}
	mode := writer.SelectMode(file.ForceDirectWrite, true, suspectDupes)
	fw := &fileWriterState{w: writer.New(mode, c.tmpDir, nzb.DestDir, file.Filename, file.Size)}
	c.writers[file.ID] = fw
	return fw
}

// confirmFilename applies a name learned from yEnc headers (Auto-naming) and
// runs duplicate-file detection against it (spec.md §4.8 "Duplicate file
// detection").
func (c *Coordinator) confirmFilename(nzb *queue.NzbInfo, file *queue.FileInfo, name string) {
	c.queue.Mu.Lock()
	file.Filename = name
	allNamed := true
	for _, f := range nzb.Files {
		if f.Filename == "" {
			allNamed = false
			break
		}
	}
	if allNamed {
		nzb.DirectRenameStatus = queue.DirectRenameDone
	}
	c.queue.Mu.Unlock()

	c.queue.Dispatcher.Emit(events.Event{Aspect: events.FileFound, NzbID: nzb.ID, FileID: file.ID})

	if !c.cfg.DupeCheck || c.dedupe == nil {
		return
	}
	if c.dedupe.Seen(nzb.DestDir, name) {
		c.queue.Mu.Lock()
		file.DupeDeleted = true
		file.Deleted = true
		c.queue.Mu.Unlock()
		c.cancelFile(file.ID)
		return
	}
	c.dedupe.Add(nzb.DestDir, name)
}

// cancelFile cancels every active downloader for fileID (used by dupe
// detection and health-triggered group delete).
func (c *Coordinator) cancelFile(fileID string) {
	c.mu.Lock()
	var targets []*active
	for _, a := range c.actives {
		if a.fileID == fileID {
			targets = append(targets, a)
		}
	}
	c.mu.Unlock()
	for _, a := range targets {
		a.dl.Cancel()
		a.cancel()
	}
}

// cancelNzb cancels every active downloader belonging to nzbID (spec.md
// invariant 5: "once deleteStatus != none, existing downloaders are
// requested to stop").
func (c *Coordinator) cancelNzb(nzbID string) {
	c.mu.Lock()
	var targets []*active
	for _, a := range c.actives {
		if a.nzbID == nzbID {
			targets = append(targets, a)
		}
	}
	c.mu.Unlock()
	for _, a := range targets {
		a.dl.Cancel()
		a.cancel()
	}
}

// completeFile finalizes a file whose articles are all terminal: invokes
// CompleteFileParts, records a CompletedFile, removes the FileInfo from its
// NzbInfo, frees its writer state, and clears its persisted partial rows.
func (c *Coordinator) completeFile(nzb *queue.NzbInfo, file *queue.FileInfo) {
	c.mu.Lock()
	fw := c.writers[file.ID]
	delete(c.writers, file.ID)
	c.mu.Unlock()
	if fw == nil {
		return
	}

	status := queue.CompletedSuccess
	fw.mu.Lock()
	for _, a := range file.Articles {
		if a.Status == queue.ArticleFailed {
			status = queue.CompletedPartial
			break
		}
	}
	err := fw.w.CompleteFileParts(fw.parts, file.CRC)
	fw.mu.Unlock()
	if err != nil {
		nzbutil.Debug("coordinator: CompleteFileParts %s failed: %v", file.ID, err)
		status = queue.CompletedFailure
		if abortErr := fw.w.Abort(); abortErr != nil {
			nzbutil.Debug("coordinator: abort %s failed: %v", file.ID, abortErr)
		}
	}

	c.queue.Mu.Lock()
	nzb.CompletedFiles = append(nzb.CompletedFiles, &queue.CompletedFile{
		ID: file.ID, Filename: file.Filename, Origname: file.Origname,
		Status: status, CRC: file.CRC, Hash16k: file.Hash16k, ParFile: file.ParFile,
	})
	nzb.RemainingSize -= file.RemainingSize
	removeFile(nzb, file.ID)
	file.PartialState = queue.PartialCompleted
	c.queue.Mu.Unlock()

	c.queue.Dispatcher.Emit(events.Event{Aspect: events.FileCompleted, NzbID: nzb.ID, FileID: file.ID})

	if c.store != nil {
		if err := c.store.DiscardFile(file.ID, false, false, true); err != nil {
			nzbutil.Debug("coordinator: discard persisted state for %s: %v", file.ID, err)
		}
	}
}

func removeFile(nzb *queue.NzbInfo, fileID string) {
	for i, f := range nzb.Files {
		if f.ID == fileID {
			nzb.Files = append(nzb.Files[:i], nzb.Files[i+1:]...)
			return
		}
	}
}

// applyHealthPolicy enforces spec.md §4.8's per-completion health check once
// an NzbInfo's permille health drops below CriticalHealth.
func (c *Coordinator) applyHealthPolicy(nzb *queue.NzbInfo) {
	switch c.cfg.HealthCheck {
	case nzbconfig.HealthCheckPause:
		c.queue.Mu.Lock()
		nzb.Paused = true
		nzb.HealthPaused = true
		c.queue.Mu.Unlock()
	case nzbconfig.HealthCheckDelete:
		c.queue.Mu.Lock()
		already := nzb.DeleteStatus != queue.DeleteNone
		nzb.DeleteStatus = queue.DeleteHealth
		c.queue.Mu.Unlock()
		if !already {
			c.cancelNzb(nzb.ID)
			c.queue.Dispatcher.Emit(events.Event{Aspect: events.NzbDeleted, NzbID: nzb.ID})
		}
	case nzbconfig.HealthCheckPark:
		c.queue.Mu.Lock()
		already := nzb.DeleteStatus != queue.DeleteNone
		nzb.DeleteStatus = queue.DeleteHealth
		nzb.Parking = true
		c.queue.Mu.Unlock()
		if !already {
			c.cancelNzb(nzb.ID)
			c.queue.Dispatcher.Emit(events.Event{Aspect: events.NzbDeleted, NzbID: nzb.ID})
		}
	case nzbconfig.HealthCheckNone:
		// no-op
	}
}

// housekeepLoop runs the coordinator's per-second maintenance (spec.md §4.8
// step 3): close idle connections, reset hanging downloaders, save partial
// state for active files.
func (c *Coordinator) housekeepLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(housekeepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pool.CloseUnusedConnections()
			c.resetHanging()
			c.saveProgress()
		}
	}
}

func (c *Coordinator) resetHanging() {
	c.mu.Lock()
	tracked := make([]downloader.Tracked, 0, len(c.actives))
	for _, a := range c.actives {
		tracked = append(tracked, a.dl)
	}
	c.mu.Unlock()
	downloader.ResetHanging(tracked, c.cfg.ArticleTimeout)
}

// saveProgress snapshots the queue and persists per-NZB and per-file
// progress counters (spec.md §4.8 step 3 "save partial state for active
// files").
func (c *Coordinator) saveProgress() {
	if c.store == nil {
		return
	}

	c.queue.Mu.Lock()
	nzbRecords := make([]state.NzbRecord, 0, len(c.queue.Items))
	var fileRecords []state.FileRecord
	var totalRemaining int64
	for _, n := range c.queue.Items {
		nzbRecords = append(nzbRecords, state.NzbRecord{
			ID: n.ID, Name: n.Name, Category: n.Category, DestDir: n.DestDir,
			Priority: n.Priority, Kind: int(n.Kind), DeleteStatus: int(n.DeleteStatus), Paused: n.Paused,
		})
		for _, f := range n.Files {
			totalRemaining += f.RemainingSize
			fileRecords = append(fileRecords, state.FileRecord{
				ID: f.ID, NzbID: n.ID, Filename: f.Filename, Size: f.Size,
				RemainingSize: f.RemainingSize, PartialState: int(f.PartialState),
				Paused: f.Paused, OutputFilename: f.OutputFilename, CRC: f.CRC,
			})
		}
	}
	queueLen := len(c.queue.Items)
	c.queue.Mu.Unlock()

	if err := c.store.SaveDownloadQueue(nzbRecords); err != nil {
		nzbutil.Debug("coordinator: save queue: %v", err)
	}
	if len(fileRecords) > 0 {
		if err := c.store.SaveDownloadProgress(fileRecords); err != nil {
			nzbutil.Debug("coordinator: save progress: %v", err)
		}
	}
	c.metrics.SetQueueStats(queueLen, totalRemaining)
}
