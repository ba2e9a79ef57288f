package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type progressRepository interface {
	GetOrCreate(ctx context.Context, studentID, lessonID string) (*models.LessonProgress, bool, error)
	AddTimeSpent(ctx context.Context, id string, seconds int64) error
	MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error)
	CourseCounts(ctx context.Context, studentID, courseID string) (models.ProgressCounts, error)
	ModuleCounts(ctx context.Context, studentID, moduleID string) (models.ProgressCounts, error)
}

type lessonReader interface {
	FindLessonContext(ctx context.Context, lessonID string) (*models.LessonContext, error)
	ListLessonsByCourse(ctx context.Context, courseID string) ([]models.Lesson, error)
	ListResources(ctx context.Context, lessonID string) ([]models.Resource, error)
}

type learnerProfileRepository interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Profile, error)
	AddStudySeconds(ctx context.Context, userID string, seconds int64) error
	SaveStreak(ctx context.Context, profile *models.Profile) error
	IncrementCoursesCompleted(ctx context.Context, userID string) error
}

type noteReader interface {
	FindNote(ctx context.Context, lessonID, userID string) (*models.Note, error)
}

type certificateIssuer interface {
	CheckAndIssue(ctx context.Context, studentID, courseID string) (bool, error)
}

type badgeEvaluator interface {
	EvaluateBadges(ctx context.Context, userID string) ([]models.Badge, error)
}

// CompleteLessonRequest is the lesson completion payload.
type CompleteLessonRequest struct {
	LessonID  string `json:"lesson_id" validate:"required,uuid"`
	TimeSpent int64  `json:"time_spent" validate:"gte=0"`
}

// ProgressService records lesson progress and triggers the streak, badge
// and certificate side effects of completing a lesson.
type ProgressService struct {
	repo         progressRepository
	lessons      lessonReader
	enrollments  enrollmentChecker
	profiles     learnerProfileRepository
	notes        noteReader
	certificates certificateIssuer
	badges       badgeEvaluator
	validator    *validator.Validate
	metrics      *MetricsService
	logger       *zap.Logger
	now          func() time.Time
}

// ProgressDeps groups the collaborators of ProgressService.
type ProgressDeps struct {
	Progress     progressRepository
	Lessons      lessonReader
	Enrollments  enrollmentChecker
	Profiles     learnerProfileRepository
	Notes        noteReader
	Certificates certificateIssuer
	Badges       badgeEvaluator
	Metrics      *MetricsService
}

// NewProgressService constructs ProgressService.
func NewProgressService(deps ProgressDeps, validate *validator.Validate, logger *zap.Logger) *ProgressService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		repo:         deps.Progress,
		lessons:      deps.Lessons,
		enrollments:  deps.Enrollments,
		profiles:     deps.Profiles,
		notes:        deps.Notes,
		certificates: deps.Certificates,
		badges:       deps.Badges,
		validator:    validate,
		metrics:      deps.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// MarkLessonComplete accumulates study time and completes the lesson. The
// transition to completed happens once; later calls only add time.
func (s *ProgressService) MarkLessonComplete(ctx context.Context, studentID string, req CompleteLessonRequest) (*dto.CompleteLessonResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid lesson completion payload")
	}

	lesson, err := s.lessonContext(ctx, req.LessonID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEnrollment(ctx, studentID, lesson.CourseID); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetOrCreate(ctx, studentID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load profile")
	}

	progress, _, err := s.repo.GetOrCreate(ctx, studentID, lesson.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to record progress")
	}

	if req.TimeSpent > 0 {
		if err := s.repo.AddTimeSpent(ctx, progress.ID, req.TimeSpent); err != nil {
			return nil, appErrors.ErrInternal.Wrap(err, "failed to record time spent")
		}
		if err := s.profiles.AddStudySeconds(ctx, studentID, req.TimeSpent); err != nil {
			return nil, appErrors.ErrInternal.Wrap(err, "failed to record study time")
		}
		progress.TimeSpent += req.TimeSpent
		profile.TotalStudySeconds += req.TimeSpent
	}

	now := s.now().UTC()
	transitioned, err := s.repo.MarkCompleted(ctx, progress.ID, now)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to complete lesson")
	}

	resp := &dto.CompleteLessonResponse{
		LessonID:       lesson.ID,
		Completed:      true,
		NewlyCompleted: transitioned,
		TimeSpent:      progress.TimeSpent,
		CurrentStreak:  profile.CurrentStreak,
	}

	if transitioned {
		s.metrics.RecordLessonCompleted()
		// Re-read so the streak builds on what other requests saved meanwhile.
		if profile, err = s.profiles.GetOrCreate(ctx, studentID); err != nil {
			return nil, appErrors.ErrInternal.Wrap(err, "failed to reload profile")
		}
		UpdateStreak(profile, now)
		if err := s.profiles.SaveStreak(ctx, profile); err != nil {
			return nil, appErrors.ErrInternal.Wrap(err, "failed to update streak")
		}
		resp.CurrentStreak = profile.CurrentStreak

		awarded, err := s.badges.EvaluateBadges(ctx, studentID)
		if err != nil {
			s.logger.Warn("badge evaluation failed", zap.String("user_id", studentID), zap.Error(err))
		}
		resp.BadgesAwarded = awarded
	}

	issued, err := s.certificates.CheckAndIssue(ctx, studentID, lesson.CourseID)
	if err != nil {
		s.logger.Warn("certificate check failed", zap.String("user_id", studentID), zap.String("course_id", lesson.CourseID), zap.Error(err))
	}
	if issued {
		if err := s.profiles.IncrementCoursesCompleted(ctx, studentID); err != nil {
			s.logger.Warn("failed to count completed course", zap.String("user_id", studentID), zap.Error(err))
		}
	}
	resp.CertificateAwarded = issued

	counts, err := s.repo.CourseCounts(ctx, studentID, lesson.CourseID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to compute progress")
	}
	resp.CourseProgress = counts.Percent()
	return resp, nil
}

// LessonView opens a lesson for an enrolled student. Viewing creates the
// progress row so time can be tracked from the first visit.
func (s *ProgressService) LessonView(ctx context.Context, studentID, lessonID string) (*dto.LessonViewResponse, error) {
	lesson, err := s.lessonContext(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEnrollment(ctx, studentID, lesson.CourseID); err != nil {
		return nil, err
	}

	progress, _, err := s.repo.GetOrCreate(ctx, studentID, lesson.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to record progress")
	}
	resources, err := s.lessons.ListResources(ctx, lesson.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load resources")
	}
	ordered, err := s.lessons.ListLessonsByCourse(ctx, lesson.CourseID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load lessons")
	}
	note, err := s.notes.FindNote(ctx, lesson.ID, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load note")
	}
	counts, err := s.repo.CourseCounts(ctx, studentID, lesson.CourseID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to compute progress")
	}

	return &dto.LessonViewResponse{
		Lesson:         *lesson,
		Progress:       *progress,
		Resources:      resources,
		Note:           note,
		Navigation:     navigation(ordered, lesson.ID),
		CourseProgress: counts.Percent(),
	}, nil
}

// ModuleProgress computes completion over one module's lessons.
func (s *ProgressService) ModuleProgress(ctx context.Context, studentID, moduleID string) (*dto.ScopeProgress, error) {
	result := &dto.ScopeProgress{ID: moduleID}
	if studentID == "" {
		return result, nil
	}
	counts, err := s.repo.ModuleCounts(ctx, studentID, moduleID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to compute progress")
	}
	result.Completed = counts.Completed
	result.Total = counts.Total
	result.Progress = counts.Percent()
	return result, nil
}

func (s *ProgressService) lessonContext(ctx context.Context, lessonID string) (*models.LessonContext, error) {
	lesson, err := s.lessons.FindLessonContext(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load lesson")
	}
	return lesson, nil
}

func (s *ProgressService) requireEnrollment(ctx context.Context, studentID, courseID string) error {
	active, err := s.enrollments.IsActive(ctx, studentID, courseID)
	if err != nil {
		return appErrors.ErrInternal.Wrap(err, "failed to check enrollment")
	}
	if !active {
		return appErrors.Clone(appErrors.ErrNotEnrolled, "enroll in the course to access this lesson")
	}
	return nil
}

// navigation finds the neighbours of lessonID in course order.
func navigation(ordered []models.Lesson, lessonID string) dto.LessonNavigation {
	var nav dto.LessonNavigation
	for i, lesson := range ordered {
		if lesson.ID != lessonID {
			continue
		}
		if i > 0 {
			prev := ordered[i-1].ID
			nav.PreviousLessonID = &prev
		}
		if i+1 < len(ordered) {
			next := ordered[i+1].ID
			nav.NextLessonID = &next
		}
		break
	}
	return nav
}
