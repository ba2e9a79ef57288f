package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/internal/service"
	"github.com/noah-isme/edufin-api/pkg/response"
)

type discussionService interface {
	ListByLesson(ctx context.Context, userID, lessonID string) ([]models.DiscussionDetail, error)
	Create(ctx context.Context, userID, lessonID string, req service.CreateDiscussionRequest) (*models.Discussion, error)
	Thread(ctx context.Context, userID, discussionID string) (*dto.DiscussionThreadResponse, error)
	CommentOnDiscussion(ctx context.Context, userID, discussionID string, req service.CreateCommentRequest) (*models.Comment, error)
	CommentOnLesson(ctx context.Context, userID, lessonID string, req service.CreateCommentRequest) (*models.Comment, error)
	SaveNote(ctx context.Context, userID, lessonID string, req service.SaveNoteRequest) (*models.Note, error)
}

// DiscussionHandler serves lesson discussions, comments and notes.
type DiscussionHandler struct {
	service discussionService
}

// NewDiscussionHandler constructs the handler.
func NewDiscussionHandler(service discussionService) *DiscussionHandler {
	return &DiscussionHandler{service: service}
}

// List godoc
// @Summary List discussions on a lesson
// @Tags Discussions
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/discussions [get]
func (h *DiscussionHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	discussions, err := h.service.ListByLesson(c.Request.Context(), userID, trimmedParam(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, discussions, nil)
}

// Create godoc
// @Summary Start a discussion on a lesson
// @Tags Discussions
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.CreateDiscussionRequest true "Discussion"
// @Success 201 {object} response.Envelope
// @Router /lessons/{id}/discussions [post]
func (h *DiscussionHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CreateDiscussionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid discussion payload"))
		return
	}
	discussion, err := h.service.Create(c.Request.Context(), userID, trimmedParam(c, "id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, discussion)
}

// Thread godoc
// @Summary Discussion with its comments
// @Tags Discussions
// @Produce json
// @Param id path string true "Discussion ID"
// @Success 200 {object} response.Envelope
// @Router /discussions/{id} [get]
func (h *DiscussionHandler) Thread(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	thread, err := h.service.Thread(c.Request.Context(), userID, trimmedParam(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, thread, nil)
}

// Reply godoc
// @Summary Comment on a discussion
// @Tags Discussions
// @Accept json
// @Produce json
// @Param id path string true "Discussion ID"
// @Param payload body service.CreateCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /discussions/{id}/comments [post]
func (h *DiscussionHandler) Reply(c *gin.Context) {
	h.comment(c, h.service.CommentOnDiscussion)
}

// CommentOnLesson godoc
// @Summary Comment directly on a lesson
// @Tags Discussions
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.CreateCommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /lessons/{id}/comments [post]
func (h *DiscussionHandler) CommentOnLesson(c *gin.Context) {
	h.comment(c, h.service.CommentOnLesson)
}

type commentFunc func(ctx context.Context, userID, targetID string, req service.CreateCommentRequest) (*models.Comment, error)

func (h *DiscussionHandler) comment(c *gin.Context, post commentFunc) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid comment payload"))
		return
	}
	comment, err := post(c.Request.Context(), userID, trimmedParam(c, "id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// SaveNote godoc
// @Summary Save my note on a lesson
// @Tags Discussions
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.SaveNoteRequest true "Note"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/note [put]
func (h *DiscussionHandler) SaveNote(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req service.SaveNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid note payload"))
		return
	}
	note, err := h.service.SaveNote(c.Request.Context(), userID, trimmedParam(c, "id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, note, nil)
}
