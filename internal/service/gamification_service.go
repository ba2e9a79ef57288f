package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type badgeRepository interface {
	ListActive(ctx context.Context) ([]models.Badge, error)
	EarnedBadgeIDs(ctx context.Context, userID string) ([]string, error)
	Award(ctx context.Context, userID, badgeID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.UserBadgeDetail, error)
	EngagementCount(ctx context.Context, userID string) (int64, error)
}

type completedLessonCounter interface {
	CountCompleted(ctx context.Context, studentID string) (int64, error)
}

type profileStore interface {
	GetOrCreate(ctx context.Context, userID string) (*models.Profile, error)
}

// UpdateStreak advances the profile's daily streak for activity at now.
// Days are UTC calendar days. Consecutive days extend the streak, a gap
// resets it to one and repeat activity on the same day leaves it unchanged.
func UpdateStreak(profile *models.Profile, now time.Time) {
	if profile.LastActivity == nil {
		profile.CurrentStreak = 1
	} else {
		switch calendarDay(now).Sub(calendarDay(*profile.LastActivity)) {
		case 0:
		case 24 * time.Hour:
			profile.CurrentStreak++
		default:
			profile.CurrentStreak = 1
		}
	}

	at := now.UTC()
	profile.LastActivity = &at
	if profile.CurrentStreak > profile.LongestStreak {
		profile.LongestStreak = profile.CurrentStreak
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// GamificationService awards badges from learning counters.
type GamificationService struct {
	badges   badgeRepository
	lessons  completedLessonCounter
	profiles profileStore
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewGamificationService constructs GamificationService.
func NewGamificationService(badges badgeRepository, lessons completedLessonCounter, profiles profileStore, metrics *MetricsService, logger *zap.Logger) *GamificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GamificationService{badges: badges, lessons: lessons, profiles: profiles, metrics: metrics, logger: logger}
}

// EvaluateBadges awards every active badge whose threshold the user has met
// and returns the badges granted by this call. Badges are never revoked.
func (s *GamificationService) EvaluateBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	active, err := s.badges.ListActive(ctx)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list badges")
	}
	earnedIDs, err := s.badges.EarnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list earned badges")
	}
	earned := make(map[string]bool, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = true
	}

	var pending []models.Badge
	for _, badge := range active {
		if !earned[badge.ID] && badge.Type != models.BadgeSpecial {
			pending = append(pending, badge)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	counters, err := s.counters(ctx, userID)
	if err != nil {
		return nil, err
	}

	var awarded []models.Badge
	for _, badge := range pending {
		value, ok := counters.For(badge.Type)
		if !ok || value < badge.RequiredValue {
			continue
		}
		created, err := s.badges.Award(ctx, userID, badge.ID)
		if err != nil {
			return awarded, appErrors.ErrInternal.Wrap(err, "failed to award badge")
		}
		if created {
			s.metrics.RecordBadgeAwarded(badge.Type)
			s.logger.Info("badge awarded", zap.String("user_id", userID), zap.String("badge", badge.Name))
			awarded = append(awarded, badge)
		}
	}
	return awarded, nil
}

// ListBadges returns the badges the user has earned.
func (s *GamificationService) ListBadges(ctx context.Context, userID string) ([]models.UserBadgeDetail, error) {
	badges, err := s.badges.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to list badges")
	}
	return badges, nil
}

// Profile returns the user's profile, creating it on first access.
func (s *GamificationService) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, appErrors.ErrInternal.Wrap(err, "failed to load profile")
	}
	return profile, nil
}

func (s *GamificationService) counters(ctx context.Context, userID string) (models.BadgeCounters, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return models.BadgeCounters{}, err
	}
	completed, err := s.lessons.CountCompleted(ctx, userID)
	if err != nil {
		return models.BadgeCounters{}, appErrors.ErrInternal.Wrap(err, "failed to count completed lessons")
	}
	engagement, err := s.badges.EngagementCount(ctx, userID)
	if err != nil {
		return models.BadgeCounters{}, appErrors.ErrInternal.Wrap(err, "failed to count engagement")
	}
	return models.BadgeCounters{
		CompletedLessons: completed,
		CurrentStreak:    int64(profile.CurrentStreak),
		StudyMinutes:     profile.StudyMinutes(),
		Engagement:       engagement,
	}, nil
}
