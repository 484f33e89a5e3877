// Package metrics exposes Prometheus counters and gauges for the download
// engine (SPEC_FULL.md's ambient observability: "counters/gauges for
// articles downloaded/failed, bytes written, active connections per
// server-level" — the teacher's CLI stats view approximates the same
// numbers with plain atomics polled by a TUI; here they're exported for
// scraping instead). Grounded on dittofs's pkg/metrics/prometheus
// promauto.With(registry) construction pattern, collapsed to a single
// package since nzbgrab has no import-cycle concern forcing dittofs's
// constructor-registration indirection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the set of metrics the engine updates as it runs. A nil
// *Registry is valid and every method on it is a no-op, so callers that
// don't want metrics enabled can simply pass nil.
type Registry struct {
	ArticlesDownloaded  *prometheus.CounterVec
	ArticlesFailed      *prometheus.CounterVec
	BytesDownloaded     *prometheus.CounterVec
	ActiveConnections   *prometheus.GaugeVec
	QueueSize           prometheus.Gauge
	QueueBytesRemaining prometheus.Gauge
	GroupHealth         *prometheus.GaugeVec
	CrcMismatches       prometheus.Counter
	RetriesTotal        *prometheus.CounterVec
}

// New registers and returns a Registry backed by reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer's registry in production.
func New(reg prometheus.Registerer) *Registry {
	return &Registry{
		ArticlesDownloaded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nzbgrab_articles_downloaded_total",
				Help: "Total number of articles successfully downloaded, by server.",
			},
			[]string{"server"},
		),
		ArticlesFailed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nzbgrab_articles_failed_total",
				Help: "Total number of article download attempts that failed, by server and failure kind.",
			},
			[]string{"server", "kind"},
		),
		BytesDownloaded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nzbgrab_bytes_downloaded_total",
				Help: "Total decoded bytes written to disk, by server.",
			},
			[]string{"server"},
		),
		ActiveConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nzbgrab_active_connections",
				Help: "Current number of open NNTP connections, by server.",
			},
			[]string{"server"},
		),
		QueueSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nzbgrab_queue_size",
				Help: "Current number of NZBs in the download queue.",
			},
		),
		QueueBytesRemaining: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nzbgrab_queue_bytes_remaining",
				Help: "Sum of remaining bytes across all queued files.",
			},
		),
		GroupHealth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nzbgrab_group_health_permille",
				Help: "Per-NZB health score in permille (0-1000), by NZB id.",
			},
			[]string{"nzb_id"},
		),
		CrcMismatches: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nzbgrab_crc_mismatches_total",
				Help: "Total number of articles that decoded but failed yEnc CRC verification.",
			},
		),
		RetriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nzbgrab_retries_total",
				Help: "Total number of article download retries, by reason.",
			},
			[]string{"reason"},
		),
	}
}

func (r *Registry) ArticleDownloaded(server string, bytes int64) {
	if r == nil {
		return
	}
	r.ArticlesDownloaded.WithLabelValues(server).Inc()
	r.BytesDownloaded.WithLabelValues(server).Add(float64(bytes))
}

func (r *Registry) ArticleFailed(server, kind string) {
	if r == nil {
		return
	}
	r.ArticlesFailed.WithLabelValues(server, kind).Inc()
}

func (r *Registry) ConnectionsChanged(server string, delta int) {
	if r == nil {
		return
	}
	r.ActiveConnections.WithLabelValues(server).Add(float64(delta))
}

func (r *Registry) SetQueueStats(nzbCount int, bytesRemaining int64) {
	if r == nil {
		return
	}
	r.QueueSize.Set(float64(nzbCount))
	r.QueueBytesRemaining.Set(float64(bytesRemaining))
}

func (r *Registry) SetGroupHealth(nzbID string, permille int) {
	if r == nil {
		return
	}
	r.GroupHealth.WithLabelValues(nzbID).Set(float64(permille))
}

func (r *Registry) CrcMismatch() {
	if r == nil {
		return
	}
	r.CrcMismatches.Inc()
}

func (r *Registry) Retry(reason string) {
	if r == nil {
		return
	}
	r.RetriesTotal.WithLabelValues(reason).Inc()
}
