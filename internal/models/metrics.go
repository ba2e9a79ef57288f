package models

import "time"

// SystemMetrics summarises process counters since start for the admin API.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	LessonsCompleted         uint64    `json:"lessons_completed"`
	CertificatesIssued       uint64    `json:"certificates_issued"`
	BadgesAwarded            uint64    `json:"badges_awarded"`
	WebhookEvents            uint64    `json:"webhook_events"`
	JobsSucceeded            uint64    `json:"jobs_succeeded"`
	JobsFailed               uint64    `json:"jobs_failed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
