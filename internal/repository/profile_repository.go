package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufin-api/internal/models"
)

const profileColumns = `user_id, bio, total_study_seconds, courses_completed, current_streak, longest_streak, last_activity, created_at, updated_at`

// ProfileRepository manages learner profiles and their counters.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetOrCreate materialises the profile for a user and returns it.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, userID string) (*models.Profile, error) {
	const insert = `INSERT INTO profiles (user_id, bio, created_at, updated_at) VALUES ($1, '', $2, $2) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &profile, nil
}

// AddStudySeconds increments the accumulated study time.
func (r *ProfileRepository) AddStudySeconds(ctx context.Context, userID string, seconds int64) error {
	const query = `UPDATE profiles SET total_study_seconds = total_study_seconds + $2, updated_at = $3 WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, seconds, time.Now().UTC()); err != nil {
		return fmt.Errorf("add study seconds: %w", err)
	}
	return nil
}

// SaveStreak persists the streak fields of a profile.
func (r *ProfileRepository) SaveStreak(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE profiles SET current_streak = :current_streak, longest_streak = :longest_streak, last_activity = :last_activity, updated_at = :updated_at WHERE user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

// IncrementCoursesCompleted bumps the completed course counter.
func (r *ProfileRepository) IncrementCoursesCompleted(ctx context.Context, userID string) error {
	const query = `UPDATE profiles SET courses_completed = courses_completed + 1, updated_at = $2 WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment courses completed: %w", err)
	}
	return nil
}
