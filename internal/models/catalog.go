package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CourseVisibility controls who can see and enroll in a course.
type CourseVisibility string

const (
	VisibilityPublic       CourseVisibility = "public"
	VisibilityPrivate      CourseVisibility = "private"
	VisibilitySubscription CourseVisibility = "subscription"
)

// Category groups courses in the catalog.
type Category struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	CourseCount int       `db:"course_count" json:"course_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Course is the top level of the catalog hierarchy.
type Course struct {
	ID           string           `db:"id" json:"id"`
	Title        string           `db:"title" json:"title"`
	Slug         string           `db:"slug" json:"slug"`
	CategoryID   string           `db:"category_id" json:"category_id"`
	InstructorID string           `db:"instructor_id" json:"instructor_id"`
	Overview     string           `db:"overview" json:"overview"`
	ImagePath    *string          `db:"image_path" json:"image_path,omitempty"`
	Price        decimal.Decimal  `db:"price" json:"price"`
	Visibility   CourseVisibility `db:"visibility" json:"visibility"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// IsFree reports whether the course can be enrolled in without paying.
func (c Course) IsFree() bool {
	return !c.Price.IsPositive()
}

// Listed reports whether the course appears in the public catalog.
func (c Course) Listed() bool {
	return c.Visibility == VisibilityPublic || c.Visibility == VisibilitySubscription
}

// CourseSummary decorates a course with catalog aggregates.
type CourseSummary struct {
	Course
	CategoryName    string `db:"category_name" json:"category_name"`
	CategorySlug    string `db:"category_slug" json:"category_slug"`
	InstructorName  string `db:"instructor_name" json:"instructor_name"`
	EnrollmentCount int    `db:"enrollment_count" json:"enrollment_count"`
	LessonCount     int    `db:"lesson_count" json:"lesson_count"`
}

// CourseFilter captures catalog search criteria.
type CourseFilter struct {
	Search       string   `json:"q"`
	CategorySlug string   `json:"category"`
	Price        string   `json:"price" validate:"omitempty,oneof=free paid"`
	Sort         string   `json:"sort" validate:"omitempty,oneof=popularity newest price_low price_high"`
	ExcludeIDs   []string `json:"-"`
	Page         int      `json:"page"`
	PageSize     int      `json:"page_size"`
}

// Catalog sort keys.
const (
	SortPopularity = "popularity"
	SortNewest     = "newest"
	SortPriceLow   = "price_low"
	SortPriceHigh  = "price_high"
)

// Module is an ordered section of a course.
type Module struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Position    int       `db:"position" json:"order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Lesson is an ordered unit inside a module.
type Lesson struct {
	ID          string    `db:"id" json:"id"`
	ModuleID    string    `db:"module_id" json:"module_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	VideoURL    *string   `db:"video_url" json:"video_url,omitempty"`
	VideoPath   *string   `db:"video_path" json:"video_path,omitempty"`
	Position    int       `db:"position" json:"order"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// LessonContext is a lesson joined with the module and course it belongs to.
type LessonContext struct {
	Lesson
	ModuleTitle    string `db:"module_title" json:"module_title"`
	ModulePosition int    `db:"module_position" json:"module_order"`
	CourseID       string `db:"course_id" json:"course_id"`
	CourseSlug     string `db:"course_slug" json:"course_slug"`
	CourseTitle    string `db:"course_title" json:"course_title"`
}

// Resource is a downloadable file attached to a lesson.
type Resource struct {
	ID        string    `db:"id" json:"id"`
	LessonID  string    `db:"lesson_id" json:"lesson_id"`
	Title     string    `db:"title" json:"title"`
	FilePath  string    `db:"file_path" json:"file_path"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
