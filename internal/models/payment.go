package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentType decides which foreign key a payment must carry.
type PaymentType string

const (
	PaymentTypeCourse       PaymentType = "course"
	PaymentTypeSubscription PaymentType = "subscription"
)

// PaymentStatus is the reconciliation state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
}

// CanTransition reports whether s may move to next.
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckoutReferenceVersion is the current reference schema version.
const CheckoutReferenceVersion = 1

// CheckoutReference ties a provider session back to what was bought and by whom.
type CheckoutReference struct {
	Version            int         `json:"v" validate:"required,eq=1"`
	Kind               PaymentType `json:"kind" validate:"required,oneof=course subscription"`
	CourseID           string      `json:"course_id,omitempty" validate:"required_if=Kind course"`
	SubscriptionTypeID string      `json:"subscription_type_id,omitempty" validate:"required_if=Kind subscription"`
	UserID             string      `json:"user_id" validate:"required"`
}

// Value implements driver.Valuer for JSONB storage.
func (r CheckoutReference) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *CheckoutReference) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = CheckoutReference{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported reference type %T", src)
	}
	return json.Unmarshal(raw, r)
}

// Payment records one provider transaction attempt.
type Payment struct {
	ID                    string            `db:"id" json:"id"`
	UserID                string            `db:"user_id" json:"user_id"`
	Type                  PaymentType       `db:"payment_type" json:"payment_type"`
	Amount                decimal.Decimal   `db:"amount" json:"amount"`
	Currency              string            `db:"currency" json:"currency"`
	Status                PaymentStatus     `db:"status" json:"status"`
	Provider              string            `db:"provider" json:"provider"`
	ProviderSessionID     string            `db:"provider_session_id" json:"provider_session_id"`
	ProviderTransactionID *string           `db:"provider_transaction_id" json:"provider_transaction_id,omitempty"`
	CourseID              *string           `db:"course_id" json:"course_id,omitempty"`
	SubscriptionID        *string           `db:"subscription_id" json:"subscription_id,omitempty"`
	Reference             CheckoutReference `db:"reference" json:"reference"`
	CreatedAt             time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time         `db:"updated_at" json:"updated_at"`
	CompletedAt           *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// Validate enforces the payment type / target invariant.
func (p *Payment) Validate() error {
	switch p.Type {
	case PaymentTypeCourse:
		if p.CourseID == nil || *p.CourseID == "" {
			return errors.New("course payment requires a course")
		}
		if p.SubscriptionID != nil {
			return errors.New("course payment must not reference a subscription")
		}
	case PaymentTypeSubscription:
		if p.SubscriptionID == nil || *p.SubscriptionID == "" {
			return errors.New("subscription payment requires a subscription")
		}
		if p.CourseID != nil {
			return errors.New("subscription payment must not reference a course")
		}
	default:
		return fmt.Errorf("unknown payment type %q", p.Type)
	}
	if p.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	return nil
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	UserID   string
	Status   PaymentStatus
	Page     int
	PageSize int
}

// PaymentEvent is the audit trail of processed webhook deliveries.
type PaymentEvent struct {
	ID                string    `db:"id" json:"id"`
	EventID           string    `db:"event_id" json:"event_id"`
	EventType         string    `db:"event_type" json:"event_type"`
	ProviderSessionID string    `db:"provider_session_id" json:"provider_session_id"`
	Outcome           string    `db:"outcome" json:"outcome"`
	ReceivedAt        time.Time `db:"received_at" json:"received_at"`
}

// Webhook outcomes recorded on PaymentEvent and reported in metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "payment_not_found"
	OutcomeMismatch  = "reference_mismatch"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "marked_failed"
	OutcomeRejected  = "rejected"
)

// PaymentLedgerRow is one line of the admin payment export.
type PaymentLedgerRow struct {
	Payment
	UserEmail   string `db:"user_email" json:"user_email"`
	TargetTitle string `db:"target_title" json:"target_title"`
}
