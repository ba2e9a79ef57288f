package dto

import "github.com/noah-isme/edufin-api/internal/models"

// CheckoutResponse tells the client where to complete payment, or that no
// payment was needed.
type CheckoutResponse struct {
	Free         bool                 `json:"free"`
	PaymentID    string               `json:"payment_id,omitempty"`
	SessionID    string               `json:"session_id,omitempty"`
	Token        string               `json:"token,omitempty"`
	RedirectURL  string               `json:"redirect_url,omitempty"`
	Enrollment   *models.EnrollResult `json:"enrollment,omitempty"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// WebhookResult is returned to the provider after a delivery.
type WebhookResult struct {
	EventID  string `json:"event_id"`
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// PaymentExport is a rendered payment ledger.
type PaymentExport struct {
	Filename    string
	ContentType string
	Content     []byte
}
