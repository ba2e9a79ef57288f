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

const subscriptionTypeColumns = `id, name, description, price, duration_days, features, is_active, created_at`

const subscriptionColumns = `id, user_id, subscription_type_id, status, start_date, end_date, created_at, updated_at`

// SubscriptionRepository manages plans and user subscriptions.
type SubscriptionRepository struct {
	db *sqlx.DB
}

// NewSubscriptionRepository constructs the repository.
func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListActiveTypes returns purchasable plans ordered by price.
func (r *SubscriptionRepository) ListActiveTypes(ctx context.Context) ([]models.SubscriptionType, error) {
	query := `SELECT ` + subscriptionTypeColumns + ` FROM subscription_types WHERE is_active ORDER BY price, name`
	var types []models.SubscriptionType
	if err := r.db.SelectContext(ctx, &types, query); err != nil {
		return nil, fmt.Errorf("list subscription types: %w", err)
	}
	return types, nil
}

// FindTypeByID returns a plan.
func (r *SubscriptionRepository) FindTypeByID(ctx context.Context, id string) (*models.SubscriptionType, error) {
	query := `SELECT ` + subscriptionTypeColumns + ` FROM subscription_types WHERE id = $1 LIMIT 1`
	var plan models.SubscriptionType
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subscription type: %w", err)
	}
	return &plan, nil
}

// FindActiveForUser returns the user's subscription granting access at now.
func (r *SubscriptionRepository) FindActiveForUser(ctx context.Context, userID string, now time.Time) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE user_id = $1 AND status = 'active' AND (end_date IS NULL OR end_date > $2)
ORDER BY end_date DESC NULLS FIRST LIMIT 1`
	var sub models.Subscription
	if err := r.db.GetContext(ctx, &sub, query, userID, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active subscription: %w", err)
	}
	return &sub, nil
}

// Create inserts a subscription row.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	prepareIDs(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if _, err := r.db.NamedExecContext(ctx, insertSubscriptionQuery, sub); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// UpsertType inserts or updates a plan keyed by name.
func (r *SubscriptionRepository) UpsertType(ctx context.Context, plan *models.SubscriptionType) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subscription_types (id, name, description, price, duration_days, features, is_active, created_at)
VALUES (:id, :name, :description, :price, :duration_days, :features, :is_active, :created_at)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, price = EXCLUDED.price,
    duration_days = EXCLUDED.duration_days, features = EXCLUDED.features, is_active = EXCLUDED.is_active`
	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		return fmt.Errorf("upsert subscription type: %w", err)
	}
	return nil
}

const insertSubscriptionQuery = `INSERT INTO subscriptions (id, user_id, subscription_type_id, status, start_date, end_date, created_at, updated_at) VALUES (:id, :user_id, :subscription_type_id, :status, :start_date, :end_date, :created_at, :updated_at)`
