package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type discussionRepository interface {
	ListByLesson(ctx context.Context, lessonID string) ([]models.DiscussionDetail, error)
	FindByID(ctx context.Context, id string) (*models.DiscussionDetail, error)
	Create(ctx context.Context, discussion *models.Discussion) error
	FindComment(ctx context.Context, id string) (*models.Comment, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	ListDiscussionComments(ctx context.Context, discussionID string) ([]models.CommentDetail, error)
	UpsertNote(ctx context.Context, note *models.Note) error
}

type lessonLocator interface {
	FindLessonContext(ctx context.Context, lessonID string) (*models.LessonContext, error)
}

// CreateDiscussionRequest opens a thread on a lesson.
type CreateDiscussionRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required"`
}

// CreateCommentRequest posts a comment, optionally replying to another.
type CreateCommentRequest struct {
	Body     string  `json:"body" validate:"required,max=5000"`
	ParentID *string `json:"parent_id" validate:"omitempty,uuid"`
}

// SaveNoteRequest replaces the caller's note on a lesson.
type SaveNoteRequest struct {
	Content string `json:"content" validate:"max=20000"`
}

// DiscussionService manages lesson threads, comments and personal notes.
// Every operation requires an active enrollment in the lesson's course.
type DiscussionService struct {
	repo        discussionRepository
	lessons     lessonLocator
	enrollments enrollmentChecker
	badges      badgeEvaluator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDiscussionService constructs DiscussionService.
func NewDiscussionService(repo discussionRepository, lessons lessonLocator, enrollments enrollmentChecker, badges badgeEvaluator, validate *validator.Validate, logger *zap.Logger) *DiscussionService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscussionService{repo: repo, lessons: lessons, enrollments: enrollments, badges: badges, validator: validate, logger: logger}
}

// ListByLesson returns the active threads of a lesson.
func (s *DiscussionService) ListByLesson(ctx context.Context, userID, lessonID string) ([]models.DiscussionDetail, error) {
	if _, err := s.enrolledLesson(ctx, userID, lessonID); err != nil {
		return nil, err
	}
	discussions, err := s.repo.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list discussions")
	}
	return discussions, nil
}

// Create opens a thread.
func (s *DiscussionService) Create(ctx context.Context, userID, lessonID string, req CreateDiscussionRequest) (*models.Discussion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid discussion payload")
	}
	if _, err := s.enrolledLesson(ctx, userID, lessonID); err != nil {
		return nil, err
	}
	discussion := &models.Discussion{
		LessonID:  lessonID,
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
		CreatedBy: userID,
	}
	if err := s.repo.Create(ctx, discussion); err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to create discussion")
	}
	s.evaluateEngagement(ctx, userID)
	return discussion, nil
}

// Thread returns a discussion with its approved comments.
func (s *DiscussionService) Thread(ctx context.Context, userID, discussionID string) (*dto.DiscussionThreadResponse, error) {
	discussion, err := s.findDiscussion(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.enrolledLesson(ctx, userID, discussion.LessonID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListDiscussionComments(ctx, discussion.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list comments")
	}
	return &dto.DiscussionThreadResponse{Discussion: *discussion, Comments: comments}, nil
}

// CommentOnDiscussion posts a comment in a thread.
func (s *DiscussionService) CommentOnDiscussion(ctx context.Context, userID, discussionID string, req CreateCommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid comment payload")
	}
	discussion, err := s.findDiscussion(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.enrolledLesson(ctx, userID, discussion.LessonID); err != nil {
		return nil, err
	}
	comment := &models.Comment{DiscussionID: &discussion.ID}
	return s.postComment(ctx, userID, comment, req)
}

// CommentOnLesson posts a comment directly on a lesson.
func (s *DiscussionService) CommentOnLesson(ctx context.Context, userID, lessonID string, req CreateCommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid comment payload")
	}
	lesson, err := s.enrolledLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	comment := &models.Comment{LessonID: &lesson.ID}
	return s.postComment(ctx, userID, comment, req)
}

// SaveNote stores the caller's private note on a lesson.
func (s *DiscussionService) SaveNote(ctx context.Context, userID, lessonID string, req SaveNoteRequest) (*models.Note, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid note payload")
	}
	if _, err := s.enrolledLesson(ctx, userID, lessonID); err != nil {
		return nil, err
	}
	note := &models.Note{LessonID: lessonID, UserID: userID, Content: req.Content}
	if err := s.repo.UpsertNote(ctx, note); err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to save note")
	}
	return note, nil
}

func (s *DiscussionService) postComment(ctx context.Context, userID string, comment *models.Comment, req CreateCommentRequest) (*models.Comment, error) {
	if req.ParentID != nil {
		parent, err := s.repo.FindComment(ctx, *req.ParentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "parent comment not found")
			}
			return nil, appErrors.ErrInternal.Wrap(err, "failed to load parent comment")
		}
		if !sameTarget(parent, comment) {
			return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid comment payload"),
				map[string]string{"parent_id": "must reply within the same thread"})
		}
		comment.ParentID = &parent.ID
	}

	comment.AuthorID = userID
	comment.Body = strings.TrimSpace(req.Body)
	comment.IsApproved = true
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to create comment")
	}
	s.evaluateEngagement(ctx, userID)
	return comment, nil
}

func sameTarget(parent, child *models.Comment) bool {
	if child.DiscussionID != nil {
		return parent.DiscussionID != nil && *parent.DiscussionID == *child.DiscussionID
	}
	return child.LessonID != nil && parent.LessonID != nil && *parent.LessonID == *child.LessonID
}

func (s *DiscussionService) findDiscussion(ctx context.Context, id string) (*models.DiscussionDetail, error) {
	discussion, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "discussion not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load discussion")
	}
	if !discussion.IsActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "discussion not found")
	}
	return discussion, nil
}

func (s *DiscussionService) enrolledLesson(ctx context.Context, userID, lessonID string) (*models.LessonContext, error) {
	lesson, err := s.lessons.FindLessonContext(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load lesson")
	}
	active, err := s.enrollments.IsActive(ctx, userID, lesson.CourseID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to check enrollment")
	}
	if !active {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "enroll in the course to join the discussion")
	}
	return lesson, nil
}

func (s *DiscussionService) evaluateEngagement(ctx context.Context, userID string) {
	if s.badges == nil {
		return
	}
	if _, err := s.badges.EvaluateBadges(ctx, userID); err != nil {
		s.logger.Warn("badge evaluation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
