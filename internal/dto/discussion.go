package dto

import "github.com/noah-isme/edufin-api/internal/models"

// DiscussionThreadResponse is a discussion with its approved comments.
type DiscussionThreadResponse struct {
	Discussion models.DiscussionDetail `json:"discussion"`
	Comments   []models.CommentDetail  `json:"comments"`
}
