package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufin-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/courses", 200, 10*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/courses", 200, 30*time.Millisecond)
	m.RecordLessonCompleted()
	m.RecordCertificateIssued()
	m.RecordBadgeAwarded(models.BadgeStreak)
	m.RecordWebhookEvent(models.OutcomeApplied)
	m.RecordWebhookEvent(models.OutcomeDuplicate)
	m.RecordJob("certificate_pdf", errors.New("boom"))
	m.RecordJob("certificate_pdf", nil)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 20.0, snap.AverageRequestDurationMs, 0.5)
	assert.Equal(t, uint64(1), snap.LessonsCompleted)
	assert.Equal(t, uint64(1), snap.CertificatesIssued)
	assert.Equal(t, uint64(1), snap.BadgesAwarded)
	assert.Equal(t, uint64(2), snap.WebhookEvents)
	assert.Equal(t, uint64(1), snap.JobsFailed)
	assert.Equal(t, uint64(1), snap.JobsSucceeded)
	assert.Equal(t, uint64(2), snap.CacheHits)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.0001)
	assert.Greater(t, snap.Goroutines, 0)
}

func TestMetricsServiceHandlerExposesCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordWebhookEvent(models.OutcomeApplied)
	m.ObserveHTTPRequest("GET", "/courses/:slug", 200, time.Millisecond)
	m.WatchQueue("certificate_pdf", func() int { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `edufin_billing_webhook_events_total{outcome="applied"} 1`)
	assert.Contains(t, body, `edufin_http_request_duration_seconds_count{method="GET",route="/courses/:slug",status="200"} 1`)
	assert.Contains(t, body, `edufin_jobs_pending{queue="certificate_pdf"} 3`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordLessonCompleted()
	m.RecordWebhookEvent("applied")
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
