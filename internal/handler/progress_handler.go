package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/service"
	"github.com/noah-isme/edufin-api/pkg/response"
)

type progressService interface {
	MarkLessonComplete(ctx context.Context, studentID string, req service.CompleteLessonRequest) (*dto.CompleteLessonResponse, error)
	LessonView(ctx context.Context, studentID, lessonID string) (*dto.LessonViewResponse, error)
	ModuleProgress(ctx context.Context, studentID, moduleID string) (*dto.ScopeProgress, error)
}

// ProgressHandler serves lesson pages and completion.
type ProgressHandler struct {
	service progressService
}

// NewProgressHandler constructs the handler.
func NewProgressHandler(service progressService) *ProgressHandler {
	return &ProgressHandler{service: service}
}

// Lesson godoc
// @Summary Lesson page
// @Description Requires an active enrollment in the lesson's course
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id} [get]
func (h *ProgressHandler) Lesson(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	view, err := h.service.LessonView(c.Request.Context(), userID, trimmedParam(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// CompleteLesson godoc
// @Summary Mark the lesson in the path complete
// @Tags Lessons
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.CompleteLessonRequest false "Time spent in seconds"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *ProgressHandler) CompleteLesson(c *gin.Context) {
	var req service.CompleteLessonRequest
	// The body is optional here.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, bindError(err, "invalid completion payload"))
		return
	}
	req.LessonID = trimmedParam(c, "id")
	h.complete(c, req)
}

// Complete godoc
// @Summary Mark a lesson complete
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body service.CompleteLessonRequest true "Lesson and time spent"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lessons/complete [post]
func (h *ProgressHandler) Complete(c *gin.Context) {
	var req service.CompleteLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid completion payload"))
		return
	}
	h.complete(c, req)
}

func (h *ProgressHandler) complete(c *gin.Context, req service.CompleteLessonRequest) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	result, err := h.service.MarkLessonComplete(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Module godoc
// @Summary Module progress for the caller
// @Tags Lessons
// @Produce json
// @Param id path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Router /modules/{id}/progress [get]
func (h *ProgressHandler) Module(c *gin.Context) {
	progress, err := h.service.ModuleProgress(c.Request.Context(), optionalUserID(c), trimmedParam(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
