package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	cloned := Clone(ErrNotEnrolled, "enroll first")

	assert.Equal(t, "enroll first", cloned.Message)
	assert.Equal(t, http.StatusForbidden, cloned.Status)
	assert.True(t, errors.Is(cloned, ErrNotEnrolled))
	assert.False(t, errors.Is(cloned, ErrPaymentRequired))
	assert.Equal(t, "not enrolled in this course", ErrNotEnrolled.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}

func TestWithFields(t *testing.T) {
	appErr := WithFields(ErrValidation, map[string]string{"lesson_id": "required"})

	assert.Equal(t, "required", appErr.Fields["lesson_id"])
	assert.Nil(t, ErrValidation.Fields)
}

func TestKindWrapKeepsCauseAndKind(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	wrapped := ErrInternal.Wrap(cause, "failed to load course")

	assert.Equal(t, "failed to load course: connection reset", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, ErrInternal)
	assert.Nil(t, ErrInternal.Err)

	kept := ErrInvalidSignature.Wrap(cause, "")
	assert.Equal(t, ErrInvalidSignature.Message, kept.Message)

	var nilKind *Error
	assert.Nil(t, nilKind.Wrap(cause, "x"))
}

func TestFromErrorFindsKindInChain(t *testing.T) {
	err := fmt.Errorf("checkout: %w", Clone(ErrPaymentRequired, "buy the course first"))

	appErr := FromError(err)
	assert.Equal(t, ErrPaymentRequired.Code, appErr.Code)
	assert.Equal(t, "buy the course first", appErr.Message)
}
