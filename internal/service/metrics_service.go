package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/edufin-api/internal/models"
)

const metricsNamespace = "edufin"

// tally pairs an exported counter with a local copy the admin snapshot reads,
// so the snapshot never has to scrape the registry.
type tally struct {
	local atomic.Uint64
}

func (t *tally) add(c prometheus.Counter) {
	c.Inc()
	t.local.Add(1)
}

// MetricsService owns the Prometheus registry behind /metrics and the counters
// summarised by the admin metrics endpoint.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.HistogramVec
	cacheWrites     prometheus.Histogram
	lessons         prometheus.Counter
	certificates    prometheus.Counter
	badges          *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	jobs            *prometheus.CounterVec

	requests      atomic.Uint64
	requestNanos  atomic.Uint64
	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	lessonCount   tally
	certCount     tally
	badgeCount    tally
	webhookCount  tally
	jobsSucceeded tally
	jobsFailed    tally
}

// NewMetricsService registers the runtime, HTTP, cache, learning and billing
// collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		cacheLookups: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "lookup_seconds",
			Help:      "Catalog cache lookup latency by result.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"result"}),
		cacheWrites: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "write_seconds",
			Help:      "Catalog cache write latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		lessons: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lessons_completed_total",
			Help:      "Lesson progress rows that moved to completed.",
		}),
		certificates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "certificates_issued_total",
			Help:      "Certificates created for finished courses.",
		}),
		badges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "badges_awarded_total",
			Help:      "Badges awarded by type.",
		}, []string{"type"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Billing webhook deliveries by outcome.",
		}, []string{"outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "jobs",
			Name:      "attempts_total",
			Help:      "Background job attempts by queue and result.",
		}, []string{"queue", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.cacheLookups, m.cacheWrites,
		m.lessons, m.certificates, m.badges, m.webhooks, m.jobs,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "hit_ratio",
			Help:      "Share of catalog cache lookups served from cache.",
		}, m.cacheHitRatio),
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// WatchQueue exports the number of jobs pending on a background queue.
func (m *MetricsService) WatchQueue(name string, pending func() int) {
	if m == nil || pending == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "jobs",
		Name:        "pending",
		Help:        "Jobs buffered or waiting to retry.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(pending()) }))
}

// ObserveHTTPRequest records one handled request against its route template.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
	m.requests.Add(1)
	m.requestNanos.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a catalog cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
	m.cacheLookups.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveCacheWrite records a catalog cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrites.Observe(duration.Seconds())
}

// RecordLessonCompleted counts a progress row moving to completed.
func (m *MetricsService) RecordLessonCompleted() {
	if m == nil {
		return
	}
	m.lessonCount.add(m.lessons)
}

// RecordCertificateIssued counts a newly created certificate.
func (m *MetricsService) RecordCertificateIssued() {
	if m == nil {
		return
	}
	m.certCount.add(m.certificates)
}

// RecordBadgeAwarded counts a newly awarded badge.
func (m *MetricsService) RecordBadgeAwarded(badgeType models.BadgeType) {
	if m == nil {
		return
	}
	m.badgeCount.add(m.badges.WithLabelValues(string(badgeType)))
}

// RecordWebhookEvent counts a billing webhook delivery by outcome.
func (m *MetricsService) RecordWebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookCount.add(m.webhooks.WithLabelValues(outcome))
}

// RecordJob counts one attempt of a background job on queue.
func (m *MetricsService) RecordJob(queue string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.jobsFailed.add(m.jobs.WithLabelValues(queue, "error"))
		return
	}
	m.jobsSucceeded.add(m.jobs.WithLabelValues(queue, "success"))
}

// Snapshot summarises the counters for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := m.requests.Load()
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(m.requestNanos.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return models.SystemMetrics{
		CacheHitRatio:            m.cacheHitRatio(),
		CacheHits:                m.cacheHits.Load(),
		CacheMisses:              m.cacheMisses.Load(),
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		LessonsCompleted:         m.lessonCount.local.Load(),
		CertificatesIssued:       m.certCount.local.Load(),
		BadgesAwarded:            m.badgeCount.local.Load(),
		WebhookEvents:            m.webhookCount.local.Load(),
		JobsSucceeded:            m.jobsSucceeded.local.Load(),
		JobsFailed:               m.jobsFailed.local.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func (m *MetricsService) cacheHitRatio() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
