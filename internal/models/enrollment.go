package models

import "time"

// Enrollment grants a student access to a course. One row per (student, course).
type Enrollment struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Active     bool      `db:"active" json:"active"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail joins an enrollment with course info and completion counts.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle      string  `db:"course_title" json:"course_title"`
	CourseSlug       string  `db:"course_slug" json:"course_slug"`
	CourseImagePath  *string `db:"course_image_path" json:"course_image_path,omitempty"`
	TotalLessons     int     `db:"total_lessons" json:"total_lessons"`
	CompletedLessons int     `db:"completed_lessons" json:"completed_lessons"`
	Progress         float64 `db:"-" json:"progress"`
}

// EnrollOutcome tells the caller what an enroll call did.
type EnrollOutcome string

const (
	EnrollCreated         EnrollOutcome = "created"
	EnrollReactivated     EnrollOutcome = "reactivated"
	EnrollAlreadyEnrolled EnrollOutcome = "already_enrolled"
)

// EnrollResult is returned by enroll operations.
type EnrollResult struct {
	Enrollment *Enrollment   `json:"enrollment"`
	Outcome    EnrollOutcome `json:"outcome"`
}

// LessonProgress is the per-student completion and time record for a lesson.
type LessonProgress struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	LessonID    string     `db:"lesson_id" json:"lesson_id"`
	IsCompleted bool       `db:"is_completed" json:"is_completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	TimeSpent   int64      `db:"time_spent" json:"time_spent"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ProgressCounts holds completed and total lesson counts for a scope.
type ProgressCounts struct {
	Completed int `db:"completed"`
	Total     int `db:"total"`
}

// Percent returns round(100*completed/total, 1), or 0 for an empty scope.
func (p ProgressCounts) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	// Integer half-up rounding: 1/16 is 6.3, not the banker's 6.2.
	tenths := (p.Completed*1000 + p.Total/2) / p.Total
	return float64(tenths) / 10
}

// Complete reports whether every lesson in a non-empty scope is completed.
func (p ProgressCounts) Complete() bool {
	return p.Total > 0 && p.Completed == p.Total
}

// RecentProgress is a recently touched lesson for the dashboard feed.
type RecentProgress struct {
	LessonID    string     `db:"lesson_id" json:"lesson_id"`
	LessonTitle string     `db:"lesson_title" json:"lesson_title"`
	CourseSlug  string     `db:"course_slug" json:"course_slug"`
	CourseTitle string     `db:"course_title" json:"course_title"`
	IsCompleted bool       `db:"is_completed" json:"is_completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
