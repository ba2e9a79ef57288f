package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// SubscriptionType is a purchasable plan.
type SubscriptionType struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Price        decimal.Decimal `db:"price" json:"price"`
	DurationDays int             `db:"duration_days" json:"duration_days"`
	Features     pq.StringArray  `db:"features" json:"features"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// IsFree reports whether the plan costs nothing.
func (t SubscriptionType) IsFree() bool {
	return !t.Price.IsPositive()
}

// Period returns start and end for an activation at now. Plans with a zero
// duration never end.
func (t SubscriptionType) Period(now time.Time) (time.Time, *time.Time) {
	if t.DurationDays <= 0 {
		return now, nil
	}
	end := now.AddDate(0, 0, t.DurationDays)
	return now, &end
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Subscription links a user to a plan.
type Subscription struct {
	ID                 string             `db:"id" json:"id"`
	UserID             string             `db:"user_id" json:"user_id"`
	SubscriptionTypeID string             `db:"subscription_type_id" json:"subscription_type_id"`
	Status             SubscriptionStatus `db:"status" json:"status"`
	StartDate          *time.Time         `db:"start_date" json:"start_date,omitempty"`
	EndDate            *time.Time         `db:"end_date" json:"end_date,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// ActiveAt reports whether the subscription grants access at now.
func (s Subscription) ActiveAt(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	return s.EndDate == nil || now.Before(*s.EndDate)
}
