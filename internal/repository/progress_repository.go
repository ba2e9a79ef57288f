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

const progressUniqueConstraint = "lesson_progress_student_lesson_key"

const progressColumns = `id, student_id, lesson_id, is_completed, completed_at, time_spent, created_at, updated_at`

const progressCountsSelect = `SELECT COUNT(l.id) AS total, COUNT(*) FILTER (WHERE lp.is_completed) AS completed
FROM lessons l
JOIN modules m ON m.id = l.module_id
LEFT JOIN lesson_progress lp ON lp.lesson_id = l.id AND lp.student_id = $1`

// ProgressRepository manages the per-lesson progress ledger.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// FindByStudentLesson returns the ledger row for the pair.
func (r *ProgressRepository) FindByStudentLesson(ctx context.Context, studentID, lessonID string) (*models.LessonProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE student_id = $1 AND lesson_id = $2 LIMIT 1`
	var progress models.LessonProgress
	if err := r.db.GetContext(ctx, &progress, query, studentID, lessonID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson progress: %w", err)
	}
	return &progress, nil
}

// GetOrCreate returns the ledger row for the pair, inserting an empty one
// when missing. Concurrent inserts resolve to the stored row.
func (r *ProgressRepository) GetOrCreate(ctx context.Context, studentID, lessonID string) (*models.LessonProgress, bool, error) {
	existing, err := r.FindByStudentLesson(ctx, studentID, lessonID)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	now := time.Now().UTC()
	progress := &models.LessonProgress{
		ID:        uuid.NewString(),
		StudentID: studentID,
		LessonID:  lessonID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	const query = `INSERT INTO lesson_progress (id, student_id, lesson_id, is_completed, completed_at, time_spent, created_at, updated_at) VALUES (:id, :student_id, :lesson_id, :is_completed, :completed_at, :time_spent, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, progress); err != nil {
		if !isUniqueViolation(err, progressUniqueConstraint) {
			return nil, false, fmt.Errorf("create lesson progress: %w", err)
		}
		existing, err = r.FindByStudentLesson(ctx, studentID, lessonID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return progress, true, nil
}

// AddTimeSpent increments the accumulated seconds on a ledger row.
func (r *ProgressRepository) AddTimeSpent(ctx context.Context, id string, seconds int64) error {
	const query = `UPDATE lesson_progress SET time_spent = time_spent + $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, seconds, time.Now().UTC()); err != nil {
		return fmt.Errorf("add time spent: %w", err)
	}
	return nil
}

// MarkCompleted flips is_completed once. It returns true only for the call
// that performed the transition.
func (r *ProgressRepository) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	const query = `UPDATE lesson_progress SET is_completed = TRUE, completed_at = $2, updated_at = $2 WHERE id = $1 AND is_completed = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("mark lesson completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark lesson completed rows: %w", err)
	}
	return affected == 1, nil
}

// CourseCounts returns completed and total lesson counts for a course.
func (r *ProgressRepository) CourseCounts(ctx context.Context, studentID, courseID string) (models.ProgressCounts, error) {
	var counts models.ProgressCounts
	if err := r.db.GetContext(ctx, &counts, progressCountsSelect+` WHERE m.course_id = $2`, studentID, courseID); err != nil {
		return counts, fmt.Errorf("course progress counts: %w", err)
	}
	return counts, nil
}

// ModuleCounts returns completed and total lesson counts for one module.
func (r *ProgressRepository) ModuleCounts(ctx context.Context, studentID, moduleID string) (models.ProgressCounts, error) {
	var counts models.ProgressCounts
	if err := r.db.GetContext(ctx, &counts, progressCountsSelect+` WHERE m.id = $2`, studentID, moduleID); err != nil {
		return counts, fmt.Errorf("module progress counts: %w", err)
	}
	return counts, nil
}

// CompletedLessonIDs lists the lessons of a course the student has completed.
func (r *ProgressRepository) CompletedLessonIDs(ctx context.Context, studentID, courseID string) ([]string, error) {
	const query = `SELECT lp.lesson_id FROM lesson_progress lp
JOIN lessons l ON l.id = lp.lesson_id
JOIN modules m ON m.id = l.module_id
WHERE lp.student_id = $1 AND m.course_id = $2 AND lp.is_completed`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list completed lessons: %w", err)
	}
	return ids, nil
}

// CountCompleted returns how many lessons the student has completed overall.
func (r *ProgressRepository) CountCompleted(ctx context.Context, studentID string) (int64, error) {
	const query = `SELECT COUNT(*) FROM lesson_progress WHERE student_id = $1 AND is_completed`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, studentID); err != nil {
		return 0, fmt.Errorf("count completed lessons: %w", err)
	}
	return count, nil
}

// ListRecent returns the most recently touched ledger rows for the student.
func (r *ProgressRepository) ListRecent(ctx context.Context, studentID string, limit int) ([]models.RecentProgress, error) {
	const query = `SELECT lp.lesson_id, l.title AS lesson_title, co.slug AS course_slug, co.title AS course_title,
    lp.is_completed, lp.completed_at, lp.updated_at
FROM lesson_progress lp
JOIN lessons l ON l.id = lp.lesson_id
JOIN modules m ON m.id = l.module_id
JOIN courses co ON co.id = m.course_id
WHERE lp.student_id = $1
ORDER BY lp.updated_at DESC
LIMIT $2`
	var recent []models.RecentProgress
	if err := r.db.SelectContext(ctx, &recent, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list recent progress: %w", err)
	}
	return recent, nil
}
