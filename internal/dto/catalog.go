package dto

import "github.com/noah-isme/edufin-api/internal/models"

// CourseListResult is the cached shape of one catalog page.
type CourseListResult struct {
	Items []models.CourseSummary `json:"items"`
	Total int                    `json:"total"`
}

// LessonOutline is a lesson inside the course detail tree.
type LessonOutline struct {
	models.Lesson
	IsCompleted bool `json:"is_completed"`
}

// ModuleOutline groups the ordered lessons of a module.
type ModuleOutline struct {
	models.Module
	Lessons  []LessonOutline `json:"lessons"`
	Progress float64         `json:"progress"`
}

// CourseDetailResponse is the course page payload.
type CourseDetailResponse struct {
	Course          models.CourseSummary   `json:"course"`
	Modules         []ModuleOutline        `json:"modules"`
	Related         []models.CourseSummary `json:"related"`
	IsEnrolled      bool                   `json:"is_enrolled"`
	Progress        float64                `json:"progress"`
	PaymentRequired bool                   `json:"payment_required"`
}
