package billing

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const midtransTimeLayout = "2006-01-02 15:04:05"

// Midtrans statuses that carry no reconciliation step are passed on under
// their own type and acknowledged as ignored.
const midtransEventPrefix = "midtrans."

// midtransNotification is the HTTP notification Midtrans posts for every
// transaction status change.
type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	TransactionTime   string `json:"transaction_time"`
	FraudStatus       string `json:"fraud_status"`
}

// MidtransNotifications authenticates Midtrans notifications and maps them
// onto provider-neutral events. The signature lives in the body, so the
// header argument of Verify is ignored.
type MidtransNotifications struct {
	serverKey string
}

// NewMidtransNotifications builds a verifier for the account's server key.
func NewMidtransNotifications(serverKey string) *MidtransNotifications {
	return &MidtransNotifications{serverKey: serverKey}
}

// Sign returns the signature_key Midtrans sends for the given fields.
func (m *MidtransNotifications) Sign(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + m.serverKey))
	return hex.EncodeToString(sum[:])
}

// Verify checks signature_key, the SHA-512 of order_id, status_code,
// gross_amount and the server key.
func (m *MidtransNotifications) Verify(body []byte, _ string) error {
	if m.serverKey == "" {
		return errors.New("midtrans server key not configured")
	}
	notif, err := decodeMidtrans(body)
	if err != nil {
		return err
	}
	if notif.SignatureKey == "" {
		return ErrMissingSignature
	}
	expected := m.Sign(notif.OrderID, notif.StatusCode, notif.GrossAmount)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(notif.SignatureKey))) != 1 {
		return ErrBadSignature
	}
	return nil
}

// Parse maps a notification onto an Event. The order id is the checkout
// session id; transaction id and status together identify the delivery, so
// a repeated status for one transaction is a redelivery.
func (m *MidtransNotifications) Parse(body []byte) (*Event, error) {
	notif, err := decodeMidtrans(body)
	if err != nil {
		return nil, err
	}
	if notif.OrderID == "" || notif.TransactionStatus == "" {
		return nil, fmt.Errorf("%w: order_id and transaction_status are required", ErrMalformedEvent)
	}

	status := strings.ToLower(notif.TransactionStatus)
	key := notif.TransactionID
	if key == "" {
		key = notif.OrderID
	}
	evt := &Event{
		ID:   key + ":" + status,
		Type: midtransEventType(status, strings.ToLower(notif.FraudStatus)),
		Data: EventData{SessionID: notif.OrderID, TransactionID: notif.TransactionID},
	}
	if ts, err := time.Parse(midtransTimeLayout, notif.TransactionTime); err == nil {
		evt.Created = ts.Unix()
	}
	return evt, nil
}

// midtransEventType follows Midtrans' status table: settlement, and capture
// unless flagged by fraud screening, mean paid; deny, cancel and failure mean
// failed.
func midtransEventType(status, fraud string) string {
	switch status {
	case "settlement":
		return EventCheckoutCompleted
	case "capture":
		switch fraud {
		case "", "accept":
			return EventCheckoutCompleted
		case "challenge":
			return midtransEventPrefix + "capture_challenge"
		default:
			return EventPaymentFailed
		}
	case "expire":
		return EventCheckoutExpired
	case "deny", "cancel", "failure":
		return EventPaymentFailed
	default:
		return midtransEventPrefix + status
	}
}

func decodeMidtrans(body []byte) (*midtransNotification, error) {
	var notif midtransNotification
	if err := json.Unmarshal(body, &notif); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &notif, nil
}
