package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" where the MAC covers
// "<unix>.<raw body>".
const SignatureHeader = "X-Billing-Signature"

// Event types understood by the reconciler.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment.failed"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrStaleSignature   = errors.New("signature timestamp outside tolerance")
	ErrMalformedEvent   = errors.New("malformed event")
)

// Event is the provider-neutral webhook envelope.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

// EventData carries the checkout session fields. Reference is decoded by the
// consumer because its schema is versioned independently of the envelope.
type EventData struct {
	SessionID     string          `json:"session_id"`
	TransactionID string          `json:"transaction_id"`
	Reference     json.RawMessage `json:"reference"`
}

// Verifier authenticates webhook bodies with a shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier. A non-positive tolerance defaults to five minutes.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Sign produces a header value for body at ts.
func (v *Verifier) Sign(body []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", unix, v.mac(unix, body))
}

// Verify checks header against body.
func (v *Verifier) Verify(body []byte, header string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("webhook secret not configured")
	}
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	var ts string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return ErrMissingSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := v.now().Sub(time.Unix(unix, 0))
	if age > v.tolerance || age < -v.tolerance {
		return ErrStaleSignature
	}

	expected := v.mac(ts, body)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrBadSignature
}

func (v *Verifier) mac(ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write([]byte(ts))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Parse decodes a verified body. It lets Verifier stand in wherever a
// provider-specific notification parser is expected.
func (v *Verifier) Parse(body []byte) (*Event, error) {
	return ParseEvent(body)
}

// ParseEvent decodes an envelope and checks the fields every event must carry.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return nil, fmt.Errorf("%w: id and type are required", ErrMalformedEvent)
	}
	return &evt, nil
}
