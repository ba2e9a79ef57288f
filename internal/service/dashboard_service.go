package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/edufin-api/internal/dto"
	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

const recentActivityLimit = 5

type enrollmentLister interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type recentProgressReader interface {
	ListRecent(ctx context.Context, studentID string, limit int) ([]models.RecentProgress, error)
}

type certificateLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.CertificateDetail, error)
	CountActiveByStudent(ctx context.Context, studentID string) (int, error)
}

type userBadgeLister interface {
	ListByUser(ctx context.Context, userID string) ([]models.UserBadgeDetail, error)
}

// DashboardService assembles the learner's home page and progress summary.
type DashboardService struct {
	enrollments   enrollmentLister
	progress      recentProgressReader
	certificates  certificateLister
	badges        userBadgeLister
	profiles      profileStore
	subscriptions activeSubscriptionReader
	logger        *zap.Logger
	now           func() time.Time
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(enrollments enrollmentLister, progress recentProgressReader, certificates certificateLister, badges userBadgeLister, profiles profileStore, subscriptions activeSubscriptionReader, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		enrollments:   enrollments,
		progress:      progress,
		certificates:  certificates,
		badges:        badges,
		profiles:      profiles,
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
	}
}

// Summary aggregates progress across the student's active enrollments.
func (s *DashboardService) Summary(ctx context.Context, studentID string) (*dto.ProgressSummaryResponse, error) {
	enrollments, err := s.listEnrollments(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, studentID, enrollments)
}

// Student returns the learner dashboard. The independent sections load
// concurrently; a missing or failing subscription lookup only drops that
// section.
func (s *DashboardService) Student(ctx context.Context, studentID string) (*dto.StudentDashboardResponse, error) {
	enrollments, err := s.listEnrollments(ctx, studentID)
	if err != nil {
		return nil, err
	}

	resp := &dto.StudentDashboardResponse{Enrollments: enrollments}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.summarize(gctx, studentID, enrollments)
		if err == nil {
			resp.Summary = *summary
		}
		return err
	})
	g.Go(func() error {
		recent, err := s.progress.ListRecent(gctx, studentID, recentActivityLimit)
		if err != nil {
			return appErrors.ErrInternal.Wrap(err, "failed to load recent activity")
		}
		resp.RecentActivity = recent
		return nil
	})
	g.Go(func() error {
		certificates, err := s.certificates.ListByStudent(gctx, studentID)
		if err != nil {
			return appErrors.ErrInternal.Wrap(err, "failed to load certificates")
		}
		resp.Certificates = certificates
		return nil
	})
	g.Go(func() error {
		badges, err := s.badges.ListByUser(gctx, studentID)
		if err != nil {
			return appErrors.ErrInternal.Wrap(err, "failed to load badges")
		}
		resp.Badges = badges
		return nil
	})
	g.Go(func() error {
		sub, err := s.subscriptions.FindActiveForUser(gctx, studentID, s.now().UTC())
		switch {
		case err == nil:
			resp.Subscription = sub
		case !errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("failed to load subscription for dashboard", zap.String("user_id", studentID), zap.Error(err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *DashboardService) listEnrollments(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list enrollments")
	}
	return enrollments, nil
}

func (s *DashboardService) summarize(ctx context.Context, studentID string, enrollments []models.EnrollmentDetail) (*dto.ProgressSummaryResponse, error) {
	profile, err := s.profiles.GetOrCreate(ctx, studentID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load profile")
	}
	certificates, err := s.certificates.CountActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to count certificates")
	}

	summary := &dto.ProgressSummaryResponse{
		TotalCourses: len(enrollments),
		Certificates: certificates,
		Stats:        profile.Stats(),
	}
	var progressSum float64
	for _, enrollment := range enrollments {
		counts := models.ProgressCounts{Completed: enrollment.CompletedLessons, Total: enrollment.TotalLessons}
		if counts.Complete() {
			summary.CompletedCourses++
		}
		summary.TotalLessons += counts.Total
		summary.CompletedLessons += counts.Completed
		progressSum += counts.Percent()
	}
	if summary.TotalCourses > 0 {
		summary.AverageProgress = math.Round(progressSum/float64(summary.TotalCourses)*10) / 10
		summary.CompletionRate = models.ProgressCounts{Completed: summary.CompletedCourses, Total: summary.TotalCourses}.Percent()
	}
	return summary, nil
}
