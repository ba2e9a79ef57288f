package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufin-api/internal/models"
)

const userBadgeUniqueConstraint = "user_badges_user_badge_key"

// BadgeRepository manages badge definitions and grants.
type BadgeRepository struct {
	db *sqlx.DB
}

// NewBadgeRepository constructs the repository.
func NewBadgeRepository(db *sqlx.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// ListActive returns the badge definitions currently in play.
func (r *BadgeRepository) ListActive(ctx context.Context) ([]models.Badge, error) {
	const query = `SELECT id, name, description, icon, color, badge_type, required_value, is_active, created_at FROM badges WHERE is_active ORDER BY badge_type, required_value`
	var badges []models.Badge
	if err := r.db.SelectContext(ctx, &badges, query); err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	return badges, nil
}

// EarnedBadgeIDs returns the ids of badges already granted to the user.
func (r *BadgeRepository) EarnedBadgeIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT badge_id FROM user_badges WHERE user_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list earned badges: %w", err)
	}
	return ids, nil
}

// Award grants the badge. It returns false when the user already holds it.
func (r *BadgeRepository) Award(ctx context.Context, userID, badgeID string) (bool, error) {
	const query = `INSERT INTO user_badges (id, user_id, badge_id, earned_at, is_featured) VALUES ($1, $2, $3, $4, FALSE)`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), userID, badgeID, time.Now().UTC()); err != nil {
		if isUniqueViolation(err, userBadgeUniqueConstraint) {
			return false, nil
		}
		return false, fmt.Errorf("award badge: %w", err)
	}
	return true, nil
}

// ListByUser returns the user's badges with their definitions, newest first.
func (r *BadgeRepository) ListByUser(ctx context.Context, userID string) ([]models.UserBadgeDetail, error) {
	const query = `SELECT ub.id, ub.user_id, ub.badge_id, ub.earned_at, ub.is_featured,
    b.name, b.description, b.icon, b.color, b.badge_type
FROM user_badges ub
JOIN badges b ON b.id = ub.badge_id
WHERE ub.user_id = $1
ORDER BY ub.earned_at DESC`
	var badges []models.UserBadgeDetail
	if err := r.db.SelectContext(ctx, &badges, query, userID); err != nil {
		return nil, fmt.Errorf("list user badges: %w", err)
	}
	return badges, nil
}

// EngagementCount returns discussions started plus comments written by the user.
func (r *BadgeRepository) EngagementCount(ctx context.Context, userID string) (int64, error) {
	const query = `SELECT (SELECT COUNT(*) FROM discussions WHERE created_by = $1) + (SELECT COUNT(*) FROM comments WHERE author_id = $1)`
	var count int64
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count engagement: %w", err)
	}
	return count, nil
}

// UpsertBadge inserts or updates a badge definition keyed by name.
func (r *BadgeRepository) UpsertBadge(ctx context.Context, badge *models.Badge) error {
	if badge.ID == "" {
		badge.ID = uuid.NewString()
	}
	if badge.CreatedAt.IsZero() {
		badge.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO badges (id, name, description, icon, color, badge_type, required_value, is_active, created_at)
VALUES (:id, :name, :description, :icon, :color, :badge_type, :required_value, :is_active, :created_at)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, icon = EXCLUDED.icon, color = EXCLUDED.color,
    badge_type = EXCLUDED.badge_type, required_value = EXCLUDED.required_value, is_active = EXCLUDED.is_active`
	if _, err := r.db.NamedExecContext(ctx, query, badge); err != nil {
		return fmt.Errorf("upsert badge: %w", err)
	}
	return nil
}
