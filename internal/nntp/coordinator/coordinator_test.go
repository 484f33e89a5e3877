package coordinator

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nzbgrab/nzbgrab/internal/nntp/cache"
	"github.com/nzbgrab/nzbgrab/internal/nntp/connection"
	"github.com/nzbgrab/nzbgrab/internal/nntp/downloader"
	"github.com/nzbgrab/nzbgrab/internal/nntp/metrics"
	"github.com/nzbgrab/nzbgrab/internal/nntp/nzbconfig"
	"github.com/nzbgrab/nzbgrab/internal/nntp/queue"
	"github.com/nzbgrab/nzbgrab/internal/nntp/serverpool"
)

func testCore(t *testing.T) *nzbconfig.Core {
	t.Helper()
	cfg := &nzbconfig.Core{
		Servers: []nzbconfig.NewsServer{
			{ID: 1, Name: "s1", Host: "news.example.com", Port: 119, Level: 0, MaxConnections: 4, Active: true},
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func testCoordinator(t *testing.T) (*Coordinator, *queue.DownloadQueue) {
	t.Helper()
	cfg := testCore(t)
	q := queue.NewDownloadQueue()
	pool := serverpool.New(cfg)
	c := cache.New(0, nil)
	reg := metrics.New(prometheus.NewRegistry())
	dedupe := queue.NewFilenameIndex(1000, 0.01)
	return New(cfg, q, pool, c, nil, reg, dedupe, t.TempDir(), 10), q
}

func fileWithArticles(id string, n int) *queue.FileInfo {
	f := &queue.FileInfo{ID: id, Filename: "file-" + id + ".bin"}
	for i := 0; i < n; i++ {
		f.Articles = append(f.Articles, &queue.ArticleInfo{
			ID: id + "-a" + string(rune('0'+i)), PartNumber: i + 1, MessageID: "m" + string(rune('0'+i)),
		})
	}
	return f
}

func TestGetNextArticlePrefersHigherPriorityNzb(t *testing.T) {
	co, q := testCoordinator(t)

	low := &queue.NzbInfo{ID: "low", Priority: 0, Kind: queue.KindNzb, Files: []*queue.FileInfo{fileWithArticles("f1", 1)}}
	high := &queue.NzbInfo{ID: "high", Priority: 10, Kind: queue.KindNzb, Files: []*queue.FileInfo{fileWithArticles("f2", 1)}}
	q.Items = append(q.Items, low, high)

	article, file, nzb := co.getNextArticle()
	require.NotNil(t, article)
	require.Equal(t, "high", nzb.ID)
	require.Equal(t, "f2", file.ID)
	require.Equal(t, queue.ArticleRunning, article.Status)
	require.Equal(t, 1, file.ActiveDownloads)
}

func TestGetNextArticleSkipsPausedNzb(t *testing.T) {
	co, q := testCoordinator(t)

	paused := &queue.NzbInfo{ID: "n1", Kind: queue.KindNzb, Paused: true, Files: []*queue.FileInfo{fileWithArticles("f1", 1)}}
	q.Items = append(q.Items, paused)

	article, _, _ := co.getNextArticle()
	require.Nil(t, article)
}

func TestGetNextArticleRespectsPropagationDelay(t *testing.T) {
	co, q := testCoordinator(t)
	co.cfg.PropagationDelay = time.Hour

	f := fileWithArticles("f1", 1)
	f.PostedAt = time.Now()
	nzb := &queue.NzbInfo{ID: "n1", Kind: queue.KindNzb, Files: []*queue.FileInfo{f}}
	q.Items = append(q.Items, nzb)

	article, _, _ := co.getNextArticle()
	require.Nil(t, article, "article posted within the propagation delay window must not be selected yet")
}

func TestGetNextArticleMarksFileCheckedWhenExhausted(t *testing.T) {
	co, q := testCoordinator(t)

	f := fileWithArticles("f1", 1)
	f.Articles[0].Status = queue.ArticleFinished
	nzb := &queue.NzbInfo{ID: "n1", Kind: queue.KindNzb, Files: []*queue.FileInfo{f}}
	q.Items = append(q.Items, nzb)

	article, _, _ := co.getNextArticle()
	require.Nil(t, article)
	require.True(t, f.Checked)
}

func TestUnclaimRevertsClaim(t *testing.T) {
	co, q := testCoordinator(t)

	f := fileWithArticles("f1", 1)
	nzb := &queue.NzbInfo{ID: "n1", Kind: queue.KindNzb, Files: []*queue.FileInfo{f}}
	q.Items = append(q.Items, nzb)

	article, file, _ := co.getNextArticle()
	require.NotNil(t, article)

	co.unclaim(article, file)
	require.Equal(t, queue.ArticleUndefined, article.Status)
	require.Equal(t, 0, file.ActiveDownloads)
}

func TestWriterForReusesStatePerFile(t *testing.T) {
	co, _ := testCoordinator(t)

	nzb := &queue.NzbInfo{ID: "n1", DestDir: t.TempDir()}
	f := &queue.FileInfo{ID: "f1", Filename: "unique.bin", Size: 1024}
	nzb.Files = []*queue.FileInfo{f}

	fw := co.writerFor(nzb, f)
	require.NotNil(t, fw.w)

	again := co.writerFor(nzb, f)
	require.Same(t, fw, again, "writerFor must return the same state for repeated calls on one file")
}

func TestApplyHealthPolicyDelete(t *testing.T) {
	co, _ := testCoordinator(t)
	co.cfg.HealthCheck = nzbconfig.HealthCheckDelete

	nzb := &queue.NzbInfo{ID: "n1"}
	co.applyHealthPolicy(nzb)

	require.Equal(t, queue.DeleteHealth, nzb.DeleteStatus)
}

func TestApplyHealthPolicyPark(t *testing.T) {
	co, _ := testCoordinator(t)
	co.cfg.HealthCheck = nzbconfig.HealthCheckPark

	nzb := &queue.NzbInfo{ID: "n1"}
	co.applyHealthPolicy(nzb)

	require.Equal(t, queue.DeleteHealth, nzb.DeleteStatus)
	require.True(t, nzb.Parking)
}

func TestApplyHealthPolicyPause(t *testing.T) {
	co, _ := testCoordinator(t)
	co.cfg.HealthCheck = nzbconfig.HealthCheckPause

	nzb := &queue.NzbInfo{ID: "n1"}
	co.applyHealthPolicy(nzb)

	require.True(t, nzb.Paused)
	require.True(t, nzb.HealthPaused)
	require.Equal(t, queue.DeleteNone, nzb.DeleteStatus)
}

func TestCancelNzbCancelsOnlyMatchingActives(t *testing.T) {
	co, _ := testCoordinator(t)

	conn1 := connection.New(connection.Config{Host: "a", Port: 119})
	conn2 := connection.New(connection.Config{Host: "b", Port: 119})
	dl1 := downloader.New(conn1, nzbconfig.NewsServer{}, downloader.Article{}, nil, co.cfg)
	dl2 := downloader.New(conn2, nzbconfig.NewsServer{}, downloader.Article{}, nil, co.cfg)

	targetCancelled, otherCancelled := false, false
	co.mu.Lock()
	co.actives["a1"] = &active{dl: dl1, nzbID: "target", cancel: func() { targetCancelled = true }}
	co.actives["a2"] = &active{dl: dl2, nzbID: "other", cancel: func() { otherCancelled = true }}
	co.mu.Unlock()

	co.cancelNzb("target")

	require.True(t, targetCancelled)
	require.False(t, otherCancelled)
}

func TestStopCancelsAllActivesAndIsIdempotent(t *testing.T) {
	co, _ := testCoordinator(t)

	conn := connection.New(connection.Config{Host: "a", Port: 119})
	dl := downloader.New(conn, nzbconfig.NewsServer{}, downloader.Article{}, nil, co.cfg)

	called := 0
	co.mu.Lock()
	co.actives["a1"] = &active{dl: dl, cancel: func() { called++ }}
	co.mu.Unlock()

	co.Stop()
	co.Stop()

	require.Equal(t, 1, called, "Stop must cancel the downloader's context exactly once despite repeated calls")
	require.True(t, co.stopping.Load())
}

func TestAllTerminal(t *testing.T) {
	f := fileWithArticles("f1", 2)
	require.False(t, allTerminal(f))

	f.Articles[0].Status = queue.ArticleFinished
	f.Articles[1].Status = queue.ArticleFailed
	require.True(t, allTerminal(f))
}
