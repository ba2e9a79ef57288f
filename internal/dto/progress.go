package dto

import "github.com/noah-isme/edufin-api/internal/models"

// CompleteLessonResponse reports the effect of a completion call.
type CompleteLessonResponse struct {
	LessonID           string         `json:"lesson_id"`
	Completed          bool           `json:"completed"`
	NewlyCompleted     bool           `json:"newly_completed"`
	TimeSpent          int64          `json:"time_spent"`
	CourseProgress     float64        `json:"course_progress"`
	CertificateAwarded bool           `json:"certificate_awarded"`
	BadgesAwarded      []models.Badge `json:"badges_awarded,omitempty"`
	CurrentStreak      int            `json:"current_streak"`
}

// ScopeProgress is the completion of a course or module.
type ScopeProgress struct {
	ID        string  `json:"id"`
	Completed int     `json:"completed_lessons"`
	Total     int     `json:"total_lessons"`
	Progress  float64 `json:"progress"`
}

// LessonNavigation points at neighbouring lessons in course order.
type LessonNavigation struct {
	PreviousLessonID *string `json:"previous_lesson_id,omitempty"`
	NextLessonID     *string `json:"next_lesson_id,omitempty"`
}

// LessonViewResponse is the lesson page payload.
type LessonViewResponse struct {
	Lesson         models.LessonContext  `json:"lesson"`
	Progress       models.LessonProgress `json:"progress"`
	Resources      []models.Resource     `json:"resources"`
	Note           *models.Note          `json:"note,omitempty"`
	Navigation     LessonNavigation      `json:"navigation"`
	CourseProgress float64               `json:"course_progress"`
}

// ProgressSummaryResponse aggregates a learner's progress across courses.
type ProgressSummaryResponse struct {
	TotalCourses     int                 `json:"total_courses"`
	CompletedCourses int                 `json:"completed_courses"`
	AverageProgress  float64             `json:"average_progress"`
	CompletionRate   float64             `json:"completion_rate"`
	TotalLessons     int                 `json:"total_lessons"`
	CompletedLessons int                 `json:"completed_lessons"`
	Certificates     int                 `json:"certificates"`
	Stats            models.ProfileStats `json:"stats"`
}
