package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/middleware"
	"github.com/noah-isme/edufin-api/pkg/response"
)

type dashboardService interface {
	Student(ctx context.Context, studentID string) (*dto.StudentDashboardResponse, error)
	Summary(ctx context.Context, studentID string) (*dto.ProgressSummaryResponse, error)
}

// DashboardHandler serves the caller's own learning overview.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Student godoc
// @Summary Learner dashboard
// @Description Progress summary, active enrollments, recent activity, certificates, badges and subscription
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me/dashboard [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	h.serve(c, func(ctx context.Context, userID string) (interface{}, error) {
		return h.service.Student(ctx, userID)
	})
}

// Summary godoc
// @Summary Progress summary across my courses
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me/progress [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	h.serve(c, func(ctx context.Context, userID string) (interface{}, error) {
		return h.service.Summary(ctx, userID)
	})
}

// serve runs load for the authenticated caller.
func (h *DashboardHandler) serve(c *gin.Context, load func(ctx context.Context, userID string) (interface{}, error)) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	data, err := load(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, data, nil, middleware.ResponseMeta(c))
}
