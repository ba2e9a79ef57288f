package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Enrollment, error)
	GetOrCreate(ctx context.Context, studentID, courseID string) (*models.Enrollment, bool, error)
	SetActive(ctx context.Context, id string, active bool) error
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type courseFinder interface {
	FindCourseBySlug(ctx context.Context, slug string) (*models.CourseSummary, error)
}

type activeSubscriptionReader interface {
	FindActiveForUser(ctx context.Context, userID string, now time.Time) (*models.Subscription, error)
}

type courseCounter interface {
	CourseCounts(ctx context.Context, studentID, courseID string) (models.ProgressCounts, error)
}

// EnrollmentService manages course access for students.
type EnrollmentService struct {
	repo          enrollmentRepository
	courses       courseFinder
	subscriptions activeSubscriptionReader
	progress      courseCounter
	logger        *zap.Logger
	now           func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseFinder, subscriptions activeSubscriptionReader, progress courseCounter, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, subscriptions: subscriptions, progress: progress, logger: logger, now: time.Now}
}

// Enroll grants access to a free course. Free subscription courses also need
// an active subscription. Priced courses go through checkout instead.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, slug string) (*models.EnrollResult, error) {
	course, err := s.listedCourse(ctx, slug)
	if err != nil {
		return nil, err
	}

	// Price wins over visibility: a subscription never unlocks a priced course.
	switch {
	case !course.IsFree():
		return nil, appErrors.Clone(appErrors.ErrPaymentRequired, "this course requires payment")
	case course.Visibility == models.VisibilitySubscription:
		subscribed, err := s.hasActiveSubscription(ctx, studentID)
		if err != nil {
			return nil, err
		}
		if !subscribed {
			return nil, appErrors.Clone(appErrors.ErrSubscriptionRequired, "an active subscription is required for this course")
		}
	}

	return s.Grant(ctx, studentID, course.ID)
}

// Grant get-or-creates the enrollment and reactivates it if needed. It does
// not check price or visibility.
func (s *EnrollmentService) Grant(ctx context.Context, studentID, courseID string) (*models.EnrollResult, error) {
	enrollment, created, err := s.repo.GetOrCreate(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to enroll")
	}
	if created {
		s.logger.Info("student enrolled", zap.String("student_id", studentID), zap.String("course_id", courseID))
		return &models.EnrollResult{Enrollment: enrollment, Outcome: models.EnrollCreated}, nil
	}
	if enrollment.Active {
		return &models.EnrollResult{Enrollment: enrollment, Outcome: models.EnrollAlreadyEnrolled}, nil
	}

	if err := s.repo.SetActive(ctx, enrollment.ID, true); err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to reactivate enrollment")
	}
	enrollment.Active = true
	return &models.EnrollResult{Enrollment: enrollment, Outcome: models.EnrollReactivated}, nil
}

// Unenroll deactivates the student's active enrollment in the course.
func (s *EnrollmentService) Unenroll(ctx context.Context, studentID, slug string) error {
	course, err := s.findCourse(ctx, slug)
	if err != nil {
		return err
	}
	enrollment, err := s.repo.FindByStudentCourse(ctx, studentID, course.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotEnrolled, "not enrolled in this course")
		}
		return appErrors.ErrInternal.Wrap(err, "failed to load enrollment")
	}
	if !enrollment.Active {
		return appErrors.Clone(appErrors.ErrNotEnrolled, "not enrolled in this course")
	}
	if err := s.repo.SetActive(ctx, enrollment.ID, false); err != nil {
		return appErrors.ErrInternal.Wrap(err, "failed to unenroll")
	}
	return nil
}

// CourseProgress computes the student's completion of a course from the
// ledger. An anonymous caller gets zero.
func (s *EnrollmentService) CourseProgress(ctx context.Context, studentID, slug string) (*dto.ScopeProgress, error) {
	course, err := s.listedCourse(ctx, slug)
	if err != nil {
		return nil, err
	}
	result := &dto.ScopeProgress{ID: course.ID, Total: course.LessonCount}
	if studentID == "" {
		return result, nil
	}

	counts, err := s.progress.CourseCounts(ctx, studentID, course.ID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to compute progress")
	}
	result.Completed = counts.Completed
	result.Total = counts.Total
	result.Progress = counts.Percent()
	return result, nil
}

// ListEnrollments returns the student's active enrollments with progress.
func (s *EnrollmentService) ListEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list enrollments")
	}
	return enrollments, nil
}

func (s *EnrollmentService) findCourse(ctx context.Context, slug string) (*models.CourseSummary, error) {
	course, err := s.courses.FindCourseBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load course")
	}
	return course, nil
}

func (s *EnrollmentService) listedCourse(ctx context.Context, slug string) (*models.CourseSummary, error) {
	course, err := s.findCourse(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !course.Listed() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}

func (s *EnrollmentService) hasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	if _, err := s.subscriptions.FindActiveForUser(ctx, userID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.ErrInternal.Wrap(err, "failed to check subscription")
	}
	return true, nil
}
