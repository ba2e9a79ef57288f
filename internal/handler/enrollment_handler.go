package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, studentID, slug string) (*models.EnrollResult, error)
	Unenroll(ctx context.Context, studentID, slug string) error
	CourseProgress(ctx context.Context, studentID, slug string) (*dto.ScopeProgress, error)
	ListEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll in a course
// @Description Free courses and subscription courses for subscribers enroll directly; paid courses return 402
// @Tags Enrollments
// @Produce json
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{slug}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), userID, trimmedParam(c, "slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Outcome == models.EnrollCreated {
		response.Created(c, result)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Unenroll godoc
// @Summary Leave a course
// @Description Progress is kept and restored on re-enrollment
// @Tags Enrollments
// @Param slug path string true "Course slug"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /courses/{slug}/unenroll [post]
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.enrollments.Unenroll(c.Request.Context(), userID, trimmedParam(c, "slug")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Progress godoc
// @Summary Course progress for the caller
// @Tags Enrollments
// @Produce json
// @Param slug path string true "Course slug"
// @Success 200 {object} response.Envelope
// @Router /courses/{slug}/progress [get]
func (h *EnrollmentHandler) Progress(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	progress, err := h.enrollments.CourseProgress(c.Request.Context(), userID, trimmedParam(c, "slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Mine godoc
// @Summary List my active enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/enrollments [get]
func (h *EnrollmentHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	enrollments, err := h.enrollments.ListEnrollments(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}
