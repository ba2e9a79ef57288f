// Package billing talks to the hosted checkout provider and authenticates
// the events it sends back.
package billing

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is one checkout line.
type Item struct {
	ID       string
	Name     string
	Category string
	Price    decimal.Decimal
	Quantity int
}

// Customer identifies the payer towards the provider.
type Customer struct {
	FirstName string
	LastName  string
	Email     string
}

// CheckoutRequest describes a hosted checkout to open.
type CheckoutRequest struct {
	Amount     decimal.Decimal
	Currency   string
	Customer   Customer
	Items      []Item
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is what the provider hands back. SessionID is echoed in
// every webhook event for the session.
type CheckoutSession struct {
	SessionID   string
	Token       string
	RedirectURL string
}

// Provider opens hosted checkout sessions.
type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Notifications authenticates the provider's webhook deliveries and decodes
// them into events.
type Notifications interface {
	Verify(body []byte, header string) error
	Parse(body []byte) (*Event, error)
}

// NewSessionID returns a fresh provider order identifier.
func NewSessionID() string {
	return "cs_" + uuid.NewString()
}

// OfflineProvider fabricates sessions locally. It is used when no provider
// credentials are configured so the checkout flow can be exercised end to end.
type OfflineProvider struct{}

// Name implements Provider.
func (OfflineProvider) Name() string { return "offline" }

// CreateCheckoutSession implements Provider.
func (OfflineProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("checkout amount must be positive")
	}
	sessionID := NewSessionID()
	redirect := req.SuccessURL
	if redirect != "" {
		u, err := url.Parse(redirect)
		if err != nil {
			return nil, fmt.Errorf("parse success url: %w", err)
		}
		q := u.Query()
		q.Set("session_id", sessionID)
		u.RawQuery = q.Encode()
		redirect = u.String()
	}
	return &CheckoutSession{SessionID: sessionID, Token: sessionID, RedirectURL: redirect}, nil
}
