package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type fakeEnrollmentSrv struct {
	outcome models.EnrollOutcome
	err     error
}

func (f *fakeEnrollmentSrv) Enroll(_ context.Context, studentID, slug string) (*models.EnrollResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.EnrollResult{Enrollment: &models.Enrollment{StudentID: studentID, Active: true}, Outcome: f.outcome}, nil
}

func (f *fakeEnrollmentSrv) Unenroll(context.Context, string, string) error {
	return f.err
}

func (f *fakeEnrollmentSrv) CourseProgress(_ context.Context, _, slug string) (*dto.ScopeProgress, error) {
	return &dto.ScopeProgress{ID: slug, Completed: 1, Total: 2, Progress: 50}, f.err
}

func (f *fakeEnrollmentSrv) ListEnrollments(context.Context, string) ([]models.EnrollmentDetail, error) {
	return nil, f.err
}

func TestEnrollmentHandlerStatusFollowsOutcome(t *testing.T) {
	cases := []struct {
		outcome models.EnrollOutcome
		status  int
	}{
		{models.EnrollCreated, http.StatusCreated},
		{models.EnrollReactivated, http.StatusOK},
		{models.EnrollAlreadyEnrolled, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(string(tc.outcome), func(t *testing.T) {
			handler := NewEnrollmentHandler(&fakeEnrollmentSrv{outcome: tc.outcome})
			c, rec := authedContext(http.MethodPost, "/courses/go-basics/enroll", "", "student-1")
			c.Params = gin.Params{{Key: "slug", Value: "go-basics"}}

			handler.Enroll(c)

			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestEnrollmentHandlerPaidCourse(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{err: appErrors.ErrPaymentRequired})
	c, rec := authedContext(http.MethodPost, "/courses/paid/enroll", "", "student-1")
	c.Params = gin.Params{{Key: "slug", Value: "paid"}}

	handler.Enroll(c)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestEnrollmentHandlerUnenroll(t *testing.T) {
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{})
	c, _ := authedContext(http.MethodPost, "/courses/go-basics/unenroll", "", "student-1")
	c.Params = gin.Params{{Key: "slug", Value: "go-basics"}}

	handler.Unenroll(c)

	// NoContent only sets the status; the recorder sees it once flushed.
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())

	handler = NewEnrollmentHandler(&fakeEnrollmentSrv{err: appErrors.ErrNotEnrolled})
	c, rec := authedContext(http.MethodPost, "/courses/go-basics/unenroll", "", "student-1")
	handler.Unenroll(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
