package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufin-api/internal/models"
)

const enrollmentUniqueConstraint = "enrollments_student_course_key"

const enrollmentColumns = `id, student_id, course_id, active, enrolled_at, updated_at`

// EnrollmentRepository manages (student, course) enrollment rows.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByStudentCourse returns the enrollment row for the pair, active or not.
func (r *EnrollmentRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// GetOrCreate inserts an active enrollment. If a concurrent writer already
// created the row the unique violation is absorbed and the stored row is
// returned with created=false.
func (r *EnrollmentRepository) GetOrCreate(ctx context.Context, studentID, courseID string) (*models.Enrollment, bool, error) {
	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   courseID,
		Active:     true,
		EnrolledAt: now,
		UpdatedAt:  now,
	}
	const query = `INSERT INTO enrollments (id, student_id, course_id, active, enrolled_at, updated_at) VALUES (:id, :student_id, :course_id, :active, :enrolled_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if !isUniqueViolation(err, enrollmentUniqueConstraint) {
			return nil, false, fmt.Errorf("create enrollment: %w", err)
		}
		existing, findErr := r.FindByStudentCourse(ctx, studentID, courseID)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}
	return enrollment, true, nil
}

// SetActive toggles the active flag.
func (r *EnrollmentRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE enrollments SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

// IsActive reports whether the student holds an active enrollment in the course.
func (r *EnrollmentRepository) IsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND active)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}

// ListActiveByStudent returns the student's active enrollments with fresh lesson counts.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.active, e.enrolled_at, e.updated_at,
    co.title AS course_title, co.slug AS course_slug, co.image_path AS course_image_path,
    (SELECT COUNT(*) FROM lessons l JOIN modules m ON m.id = l.module_id WHERE m.course_id = co.id) AS total_lessons,
    (SELECT COUNT(*) FROM lesson_progress lp
        JOIN lessons l ON l.id = lp.lesson_id
        JOIN modules m ON m.id = l.module_id
        WHERE m.course_id = co.id AND lp.student_id = e.student_id AND lp.is_completed) AS completed_lessons
FROM enrollments e
JOIN courses co ON co.id = e.course_id
WHERE e.student_id = $1 AND e.active
ORDER BY e.enrolled_at DESC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	for i := range details {
		counts := models.ProgressCounts{Completed: details[i].CompletedLessons, Total: details[i].TotalLessons}
		details[i].Progress = counts.Percent()
	}
	return details, nil
}
