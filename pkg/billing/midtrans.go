package billing

import (
	"context"
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
)

// MidtransProvider opens Snap checkout sessions.
type MidtransProvider struct {
	client snap.Client
}

// NewMidtransProvider configures a Snap client for sandbox or production.
func NewMidtransProvider(serverKey string, production bool) *MidtransProvider {
	p := &MidtransProvider{}
	if production {
		p.client.New(serverKey, midtrans.Production)
	} else {
		p.client.New(serverKey, midtrans.Sandbox)
	}
	return p
}

// Name implements Provider.
func (p *MidtransProvider) Name() string { return "midtrans" }

// CreateCheckoutSession implements Provider. The generated order id doubles
// as the session identifier reported back in notifications.
func (p *MidtransProvider) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("checkout amount must be positive")
	}
	sessionID := NewSessionID()
	snapReq := buildSnapRequest(sessionID, req)

	resp, mErr := p.client.CreateTransaction(snapReq)
	if mErr != nil {
		return nil, fmt.Errorf("create snap transaction: %w", mErr)
	}
	return &CheckoutSession{SessionID: sessionID, Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func buildSnapRequest(orderID string, req CheckoutRequest) *snap.Request {
	items := make([]midtrans.ItemDetails, 0, len(req.Items))
	for _, item := range req.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, midtrans.ItemDetails{
			ID:       item.ID,
			Name:     truncate(item.Name, 50),
			Price:    grossAmount(item.Price),
			Qty:      int32(qty),
			Category: item.Category,
		})
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: grossAmount(req.Amount),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Customer.FirstName,
			LName: req.Customer.LastName,
			Email: req.Customer.Email,
		},
		Items: &items,
	}
	if req.SuccessURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: req.SuccessURL}
	}
	return snapReq
}

// grossAmount rounds up to whole currency units, which is what Snap accepts.
func grossAmount(d decimal.Decimal) int64 {
	return d.Ceil().IntPart()
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
