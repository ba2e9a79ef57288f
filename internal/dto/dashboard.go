package dto

import "github.com/noah-isme/edufin-api/internal/models"

// StudentDashboardResponse is the learner home page.
type StudentDashboardResponse struct {
	Summary        ProgressSummaryResponse    `json:"summary"`
	Enrollments    []models.EnrollmentDetail  `json:"enrollments"`
	RecentActivity []models.RecentProgress    `json:"recent_activity"`
	Certificates   []models.CertificateDetail `json:"certificates"`
	Badges         []models.UserBadgeDetail   `json:"badges"`
	Subscription   *models.Subscription       `json:"subscription,omitempty"`
}
