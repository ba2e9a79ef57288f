package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufin-api/internal/models"
)

const paymentColumns = `id, user_id, payment_type, amount, currency, status, provider, provider_session_id,
    provider_transaction_id, course_id, subscription_id, reference, created_at, updated_at, completed_at`

const insertPaymentQuery = `INSERT INTO payments (id, user_id, payment_type, amount, currency, status, provider, provider_session_id,
    provider_transaction_id, course_id, subscription_id, reference, created_at, updated_at, completed_at)
VALUES (:id, :user_id, :payment_type, :amount, :currency, :status, :provider, :provider_session_id,
    :provider_transaction_id, :course_id, :subscription_id, :reference, :created_at, :updated_at, :completed_at)`

// CompletionInput describes a verified "checkout completed" delivery.
type CompletionInput struct {
	EventID       string
	EventType     string
	Payment       *models.Payment
	TransactionID string
	At            time.Time
}

// PaymentRepository persists payments and reconciles provider events.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create validates and inserts a payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if err := payment.Validate(); err != nil {
		return err
	}
	prepareIDs(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if _, err := r.db.NamedExecContext(ctx, insertPaymentQuery, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// CreateWithSubscription inserts a pending subscription and the payment that
// will activate it in one transaction.
func (r *PaymentRepository) CreateWithSubscription(ctx context.Context, sub *models.Subscription, payment *models.Payment) (err error) {
	prepareIDs(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	payment.SubscriptionID = &sub.ID
	if err = payment.Validate(); err != nil {
		return err
	}
	prepareIDs(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin subscription checkout: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.NamedExecContext(ctx, insertSubscriptionQuery, sub); err != nil {
		return fmt.Errorf("create pending subscription: %w", err)
	}
	if _, err = tx.NamedExecContext(ctx, insertPaymentQuery, payment); err != nil {
		return fmt.Errorf("create subscription payment: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit subscription checkout: %w", err)
	}
	return nil
}

// FindBySessionID returns the payment created for a provider session. The
// match is exact.
func (r *PaymentRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.findOne(ctx, "provider_session_id", sessionID)
}

// FindByID returns a payment by id.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.findOne(ctx, "id", id)
}

func (r *PaymentRepository) findOne(ctx context.Context, column, value string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + column + ` = $1 LIMIT 1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, value); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &payment, nil
}

// List returns payments matching the filter, newest first, with the total count.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	where, args := paymentFilterClause(filter)
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s FROM payments p%s ORDER BY p.created_at DESC LIMIT %d OFFSET %d", paymentColumns, where, pageSize, models.PageOffset(page, pageSize))

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments p"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// ListLedger returns every payment matching the filter joined with the payer
// email and the purchased item title.
func (r *PaymentRepository) ListLedger(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentLedgerRow, error) {
	where, args := paymentFilterClause(filter)
	query := `SELECT p.id, p.user_id, p.payment_type, p.amount, p.currency, p.status, p.provider, p.provider_session_id,
    p.provider_transaction_id, p.course_id, p.subscription_id, p.reference, p.created_at, p.updated_at, p.completed_at,
    u.email AS user_email, COALESCE(co.title, st.name, '') AS target_title
FROM payments p
JOIN users u ON u.id = p.user_id
LEFT JOIN courses co ON co.id = p.course_id
LEFT JOIN subscriptions s ON s.id = p.subscription_id
LEFT JOIN subscription_types st ON st.id = s.subscription_type_id` + where + ` ORDER BY p.created_at DESC`

	var rows []models.PaymentLedgerRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list payment ledger: %w", err)
	}
	return rows, nil
}

func paymentFilterClause(filter models.PaymentFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("p.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// RecordEvent stores a webhook delivery that caused no payment mutation.
// Redeliveries of an already recorded event id are ignored.
func (r *PaymentRepository) RecordEvent(ctx context.Context, eventID, eventType, sessionID, outcome string) error {
	if _, err := insertEvent(ctx, r.db, eventID, eventType, sessionID, outcome); err != nil {
		return err
	}
	return nil
}

// ApplyCheckoutCompleted marks the payment completed and grants what was
// bought, atomically with recording the event. Redelivered events and
// repeated grants are absorbed by upserts.
func (r *PaymentRepository) ApplyCheckoutCompleted(ctx context.Context, in CompletionInput) (outcome string, err error) {
	payment := in.Payment
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin checkout completion: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fresh, err := insertEvent(ctx, tx, in.EventID, in.EventType, payment.ProviderSessionID, models.OutcomeApplied)
	if err != nil {
		return "", err
	}
	if !fresh {
		if err = tx.Commit(); err != nil {
			return "", fmt.Errorf("commit duplicate event: %w", err)
		}
		return models.OutcomeDuplicate, nil
	}

	res, err := tx.ExecContext(ctx, `UPDATE payments SET status = 'completed', provider_transaction_id = $2, completed_at = $3, updated_at = $3 WHERE id = $1 AND status = 'pending'`,
		payment.ID, nullIfEmpty(in.TransactionID), in.At)
	if err != nil {
		return "", fmt.Errorf("complete payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("complete payment rows: %w", err)
	}
	if affected == 0 {
		var status models.PaymentStatus
		if err = tx.GetContext(ctx, &status, `SELECT status FROM payments WHERE id = $1`, payment.ID); err != nil {
			return "", fmt.Errorf("reload payment status: %w", err)
		}
		if status != models.PaymentCompleted {
			if _, err = tx.ExecContext(ctx, `UPDATE payment_events SET outcome = $2 WHERE event_id = $1`, in.EventID, models.OutcomeIgnored); err != nil {
				return "", fmt.Errorf("update event outcome: %w", err)
			}
			if err = tx.Commit(); err != nil {
				return "", fmt.Errorf("commit ignored event: %w", err)
			}
			return models.OutcomeIgnored, nil
		}
	}

	switch payment.Type {
	case models.PaymentTypeCourse:
		const upsert = `INSERT INTO enrollments (id, student_id, course_id, active, enrolled_at, updated_at)
VALUES ($1, $2, $3, TRUE, $4, $4)
ON CONFLICT (student_id, course_id) DO UPDATE SET active = TRUE, updated_at = EXCLUDED.updated_at`
		if _, err = tx.ExecContext(ctx, upsert, uuid.NewString(), payment.UserID, *payment.CourseID, in.At); err != nil {
			return "", fmt.Errorf("grant course enrollment: %w", err)
		}
	case models.PaymentTypeSubscription:
		var durationDays int
		const planQuery = `SELECT st.duration_days FROM subscriptions s JOIN subscription_types st ON st.id = s.subscription_type_id WHERE s.id = $1`
		if err = tx.GetContext(ctx, &durationDays, planQuery, *payment.SubscriptionID); err != nil {
			return "", fmt.Errorf("load subscription plan: %w", err)
		}
		start, end := models.SubscriptionType{DurationDays: durationDays}.Period(in.At)
		const activate = `UPDATE subscriptions SET status = 'active', start_date = $2, end_date = $3, updated_at = $2 WHERE id = $1 AND status = 'pending'`
		if _, err = tx.ExecContext(ctx, activate, *payment.SubscriptionID, start, end); err != nil {
			return "", fmt.Errorf("activate subscription: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit checkout completion: %w", err)
	}
	return models.OutcomeApplied, nil
}

// MarkFailed moves a pending payment to failed and cancels its pending
// subscription, recording the event in the same transaction.
func (r *PaymentRepository) MarkFailed(ctx context.Context, eventID, eventType string, payment *models.Payment, at time.Time) (outcome string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin payment failure: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fresh, err := insertEvent(ctx, tx, eventID, eventType, payment.ProviderSessionID, models.OutcomeFailed)
	if err != nil {
		return "", err
	}
	outcome = models.OutcomeDuplicate
	if fresh {
		res, execErr := tx.ExecContext(ctx, `UPDATE payments SET status = 'failed', updated_at = $2 WHERE id = $1 AND status = 'pending'`, payment.ID, at)
		if execErr != nil {
			err = fmt.Errorf("fail payment: %w", execErr)
			return "", err
		}
		affected, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			err = fmt.Errorf("fail payment rows: %w", rowsErr)
			return "", err
		}
		outcome = models.OutcomeFailed
		if affected == 0 {
			outcome = models.OutcomeIgnored
			if _, err = tx.ExecContext(ctx, `UPDATE payment_events SET outcome = $2 WHERE event_id = $1`, eventID, outcome); err != nil {
				return "", fmt.Errorf("update event outcome: %w", err)
			}
		} else if payment.SubscriptionID != nil {
			if _, err = tx.ExecContext(ctx, `UPDATE subscriptions SET status = 'cancelled', updated_at = $2 WHERE id = $1 AND status = 'pending'`, *payment.SubscriptionID, at); err != nil {
				return "", fmt.Errorf("cancel pending subscription: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit payment failure: %w", err)
	}
	return outcome, nil
}

// Refund moves a completed payment to refunded and revokes the access it
// granted. It returns false when the payment was not completed.
func (r *PaymentRepository) Refund(ctx context.Context, payment *models.Payment, at time.Time) (refunded bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin refund: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE payments SET status = 'refunded', updated_at = $2 WHERE id = $1 AND status = 'completed'`, payment.ID, at)
	if err != nil {
		return false, fmt.Errorf("refund payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("refund payment rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	switch payment.Type {
	case models.PaymentTypeCourse:
		_, err = tx.ExecContext(ctx, `UPDATE enrollments SET active = FALSE, updated_at = $3 WHERE student_id = $1 AND course_id = $2`, payment.UserID, *payment.CourseID, at)
	case models.PaymentTypeSubscription:
		_, err = tx.ExecContext(ctx, `UPDATE subscriptions SET status = 'cancelled', updated_at = $2 WHERE id = $1`, *payment.SubscriptionID, at)
	}
	if err != nil {
		return false, fmt.Errorf("revoke refunded access: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit refund: %w", err)
	}
	return true, nil
}

// insertEvent records a delivery and reports whether the event id was new.
func insertEvent(ctx context.Context, exec sqlx.ExecerContext, eventID, eventType, sessionID, outcome string) (bool, error) {
	const query = `INSERT INTO payment_events (id, event_id, event_type, provider_session_id, outcome, received_at) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (event_id) DO NOTHING`
	res, err := exec.ExecContext(ctx, query, uuid.NewString(), eventID, eventType, sessionID, outcome, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record payment event rows: %w", err)
	}
	return affected == 1, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
