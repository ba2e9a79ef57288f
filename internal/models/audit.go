package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded for security relevant and money moving operations.
const (
	AuditActionLogin         = "LOGIN"
	AuditActionLogout        = "LOGOUT"
	AuditActionRefreshReuse  = "REFRESH_TOKEN_REUSE"
	AuditActionCheckout      = "CHECKOUT"
	AuditActionRefund        = "PAYMENT_REFUND"
	AuditActionPaymentExport = "PAYMENT_EXPORT"
	AuditActionAdminRequest  = "ADMIN_REQUEST"
)

// Resources audit entries are filed under.
const (
	AuditResourceAuth     = "auth"
	AuditResourcePayments = "payments"
	AuditResourceAdmin    = "admin"
)

// AuditLog is one row of the audit trail.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// NewAuditEntry starts an entry for actorID. An empty actor is stored as NULL.
func NewAuditEntry(actorID, action, resource string) *AuditLog {
	entry := &AuditLog{Action: action, Resource: resource}
	if actorID != "" {
		entry.UserID = &actorID
	}
	return entry
}

// On sets the affected resource id, ignoring empty ids.
func (l *AuditLog) On(resourceID string) *AuditLog {
	if resourceID != "" {
		l.ResourceID = &resourceID
	}
	return l
}

// WithValues stores v as the entry's JSON payload. Values that cannot be
// encoded leave the payload empty.
func (l *AuditLog) WithValues(v interface{}) *AuditLog {
	if raw, err := json.Marshal(v); err == nil {
		l.NewValues = raw
	}
	return l
}

// From records where the request came from.
func (l *AuditLog) From(ip, userAgent string) *AuditLog {
	l.IPAddress = ip
	l.UserAgent = userAgent
	return l
}
