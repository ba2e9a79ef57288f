package models

import "time"

// BadgeType selects which counter a badge threshold applies to.
type BadgeType string

const (
	BadgeCompletion BadgeType = "completion"
	BadgeStreak     BadgeType = "streak"
	BadgeTime       BadgeType = "time"
	BadgeEngagement BadgeType = "engagement"
	BadgeSpecial    BadgeType = "special"
)

// Badge is an achievement definition.
type Badge struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Icon          string    `db:"icon" json:"icon"`
	Color         string    `db:"color" json:"color"`
	Type          BadgeType `db:"badge_type" json:"badge_type"`
	RequiredValue int64     `db:"required_value" json:"required_value"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// UserBadge records that a user earned a badge. One row per (user, badge).
type UserBadge struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	BadgeID    string    `db:"badge_id" json:"badge_id"`
	EarnedAt   time.Time `db:"earned_at" json:"earned_at"`
	IsFeatured bool      `db:"is_featured" json:"is_featured"`
}

// UserBadgeDetail joins a grant with its definition.
type UserBadgeDetail struct {
	UserBadge
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Icon        string    `db:"icon" json:"icon"`
	Color       string    `db:"color" json:"color"`
	Type        BadgeType `db:"badge_type" json:"badge_type"`
}

// BadgeCounters are the values badge thresholds are compared against.
type BadgeCounters struct {
	CompletedLessons int64
	CurrentStreak    int64
	StudyMinutes     int64
	Engagement       int64
}

// For returns the counter relevant to t. Special badges have none.
func (c BadgeCounters) For(t BadgeType) (int64, bool) {
	switch t {
	case BadgeCompletion:
		return c.CompletedLessons, true
	case BadgeStreak:
		return c.CurrentStreak, true
	case BadgeTime:
		return c.StudyMinutes, true
	case BadgeEngagement:
		return c.Engagement, true
	default:
		return 0, false
	}
}
