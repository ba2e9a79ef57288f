package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edufin-api/internal/models"
	"github.com/noah-isme/edufin-api/pkg/response"
)

type gamificationService interface {
	ListBadges(ctx context.Context, userID string) ([]models.UserBadgeDetail, error)
	Profile(ctx context.Context, userID string) (*models.Profile, error)
}

// GamificationHandler exposes earned badges and learner stats.
type GamificationHandler struct {
	service gamificationService
}

// NewGamificationHandler constructs the handler.
func NewGamificationHandler(service gamificationService) *GamificationHandler {
	return &GamificationHandler{service: service}
}

// Badges godoc
// @Summary List my badges
// @Tags Gamification
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/badges [get]
func (h *GamificationHandler) Badges(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	badges, err := h.service.ListBadges(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, badges, nil)
}

// Profile godoc
// @Summary My learner profile
// @Tags Gamification
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/profile [get]
func (h *GamificationHandler) Profile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	profile, err := h.service.Profile(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}
