// Package errors defines the typed API errors every layer returns. An Error
// carries the HTTP status and machine code the response envelope exposes,
// while the wrapped cause stays server side.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an API error kind, optionally wrapping the cause that produced it.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code, so copies made by Clone or Wrap still satisfy
// errors.Is against the predefined kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if e == nil || !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of the kind e with cause attached. An empty message
// keeps e's own.
func (e *Error) Wrap(cause error, message string) *Error {
	clone := Clone(e, message)
	if clone != nil {
		clone.Err = cause
	}
	return clone
}

// New declares an error kind.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// General purpose kinds.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Learning access and billing kinds.
var (
	ErrNotEnrolled          = New("NOT_ENROLLED", http.StatusForbidden, "not enrolled in this course")
	ErrPaymentRequired      = New("PAYMENT_REQUIRED", http.StatusPaymentRequired, "payment required")
	ErrSubscriptionRequired = New("SUBSCRIPTION_REQUIRED", http.StatusPaymentRequired, "active subscription required")
	ErrInvalidSignature     = New("INVALID_SIGNATURE", http.StatusBadRequest, "invalid webhook signature")
	ErrMalformedPayload     = New("MALFORMED_PAYLOAD", http.StatusBadRequest, "malformed webhook payload")
	ErrPaymentNotFound      = New("PAYMENT_NOT_FOUND", http.StatusNotFound, "payment not found")
	ErrInvalidTransition    = New("INVALID_TRANSITION", http.StatusConflict, "invalid status transition")
)

// FromError returns the *Error in err's chain, or wraps err as ErrInternal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.Wrap(err, "")
}

// Clone copies err, replacing the message when one is given.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithFields copies err with per-field messages attached.
func WithFields(err *Error, fields map[string]string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Fields = fields
	return &clone
}
