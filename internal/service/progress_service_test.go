package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type mockProgressRepo struct {
	rows          map[string]*models.LessonProgress
	courseLessons map[string][]string
}

func newMockProgressRepo() *mockProgressRepo {
	return &mockProgressRepo{rows: map[string]*models.LessonProgress{}, courseLessons: map[string][]string{}}
}

func (m *mockProgressRepo) GetOrCreate(ctx context.Context, studentID, lessonID string) (*models.LessonProgress, bool, error) {
	key := studentID + ":" + lessonID
	if row, ok := m.rows[key]; ok {
		copied := *row
		return &copied, false, nil
	}
	row := &models.LessonProgress{ID: key, StudentID: studentID, LessonID: lessonID}
	m.rows[key] = row
	copied := *row
	return &copied, true, nil
}

func (m *mockProgressRepo) AddTimeSpent(ctx context.Context, id string, seconds int64) error {
	m.rows[id].TimeSpent += seconds
	return nil
}

func (m *mockProgressRepo) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	row := m.rows[id]
	if row.IsCompleted {
		return false, nil
	}
	row.IsCompleted = true
	row.CompletedAt = &at
	return true, nil
}

func (m *mockProgressRepo) CourseCounts(ctx context.Context, studentID, courseID string) (models.ProgressCounts, error) {
	counts := models.ProgressCounts{Total: len(m.courseLessons[courseID])}
	for _, lessonID := range m.courseLessons[courseID] {
		if row, ok := m.rows[studentID+":"+lessonID]; ok && row.IsCompleted {
			counts.Completed++
		}
	}
	return counts, nil
}

func (m *mockProgressRepo) ModuleCounts(ctx context.Context, studentID, moduleID string) (models.ProgressCounts, error) {
	return m.CourseCounts(ctx, studentID, moduleID)
}

type mockLessonReader struct {
	lessons map[string]*models.LessonContext
	ordered []models.Lesson
}

func (m *mockLessonReader) FindLessonContext(ctx context.Context, lessonID string) (*models.LessonContext, error) {
	if lesson, ok := m.lessons[lessonID]; ok {
		return lesson, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLessonReader) ListLessonsByCourse(ctx context.Context, courseID string) ([]models.Lesson, error) {
	return m.ordered, nil
}

func (m *mockLessonReader) ListResources(ctx context.Context, lessonID string) ([]models.Resource, error) {
	return []models.Resource{{ID: "res-1", LessonID: lessonID, Title: "Slides"}}, nil
}

type mockEnrollmentChecker struct {
	active map[string]bool
}

func (m *mockEnrollmentChecker) IsActive(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.active[studentID+":"+courseID], nil
}

type mockProfileRepo struct {
	profiles map[string]*models.Profile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: map[string]*models.Profile{}}
}

func (m *mockProfileRepo) GetOrCreate(ctx context.Context, userID string) (*models.Profile, error) {
	if _, ok := m.profiles[userID]; !ok {
		m.profiles[userID] = &models.Profile{UserID: userID}
	}
	copied := *m.profiles[userID]
	return &copied, nil
}

func (m *mockProfileRepo) AddStudySeconds(ctx context.Context, userID string, seconds int64) error {
	m.profiles[userID].TotalStudySeconds += seconds
	return nil
}

func (m *mockProfileRepo) SaveStreak(ctx context.Context, profile *models.Profile) error {
	stored := m.profiles[profile.UserID]
	stored.CurrentStreak = profile.CurrentStreak
	stored.LongestStreak = profile.LongestStreak
	stored.LastActivity = profile.LastActivity
	return nil
}

func (m *mockProfileRepo) IncrementCoursesCompleted(ctx context.Context, userID string) error {
	m.profiles[userID].CoursesCompleted++
	return nil
}

type mockNoteReader struct{}

func (mockNoteReader) FindNote(ctx context.Context, lessonID, userID string) (*models.Note, error) {
	return nil, sql.ErrNoRows
}

// mockIssuer issues at most one certificate per student and course once the
// progress repository reports the course complete.
type mockIssuer struct {
	progress *mockProgressRepo
	issued   map[string]bool
	calls    int
}

func (m *mockIssuer) CheckAndIssue(ctx context.Context, studentID, courseID string) (bool, error) {
	m.calls++
	counts, _ := m.progress.CourseCounts(ctx, studentID, courseID)
	if !counts.Complete() || m.issued[studentID+":"+courseID] {
		return false, nil
	}
	m.issued[studentID+":"+courseID] = true
	return true, nil
}

type mockBadgeEvaluator struct {
	calls int
	err   error
}

func (m *mockBadgeEvaluator) EvaluateBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.calls == 1 {
		return []models.Badge{{ID: "badge-first", Name: "First Steps"}}, nil
	}
	return nil, nil
}

type progressFixture struct {
	svc      *ProgressService
	repo     *mockProgressRepo
	profiles *mockProfileRepo
	issuer   *mockIssuer
	badges   *mockBadgeEvaluator
	lessons  []string
	courseID string
}

func newProgressFixture(t *testing.T, lessonCount int) *progressFixture {
	t.Helper()
	courseID := uuid.NewString()
	repo := newMockProgressRepo()
	reader := &mockLessonReader{lessons: map[string]*models.LessonContext{}}
	ids := make([]string, 0, lessonCount)
	for i := 0; i < lessonCount; i++ {
		id := uuid.NewString()
		ids = append(ids, id)
		lesson := models.Lesson{ID: id, ModuleID: "module-1", Title: "Lesson", Position: i + 1}
		reader.lessons[id] = &models.LessonContext{Lesson: lesson, CourseID: courseID, CourseSlug: "go-basics"}
		reader.ordered = append(reader.ordered, lesson)
	}
	repo.courseLessons[courseID] = ids

	profiles := newMockProfileRepo()
	issuer := &mockIssuer{progress: repo, issued: map[string]bool{}}
	badges := &mockBadgeEvaluator{}
	svc := NewProgressService(ProgressDeps{
		Progress:     repo,
		Lessons:      reader,
		Enrollments:  &mockEnrollmentChecker{active: map[string]bool{"student-1:" + courseID: true}},
		Profiles:     profiles,
		Notes:        mockNoteReader{},
		Certificates: issuer,
		Badges:       badges,
	}, nil, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }

	return &progressFixture{svc: svc, repo: repo, profiles: profiles, issuer: issuer, badges: badges, lessons: ids, courseID: courseID}
}

func TestMarkLessonCompleteProgressesCourse(t *testing.T) {
	fx := newProgressFixture(t, 4)
	ctx := context.Background()

	want := []float64{25, 50, 75, 100}
	for i, lessonID := range fx.lessons {
		resp, err := fx.svc.MarkLessonComplete(ctx, "student-1", CompleteLessonRequest{LessonID: lessonID, TimeSpent: 60})
		require.NoError(t, err)
		assert.True(t, resp.NewlyCompleted)
		assert.Equal(t, want[i], resp.CourseProgress)
		assert.Equal(t, i == len(fx.lessons)-1, resp.CertificateAwarded)
	}

	profile := fx.profiles.profiles["student-1"]
	assert.Equal(t, int64(240), profile.TotalStudySeconds)
	assert.Equal(t, 1, profile.CoursesCompleted)
	assert.Equal(t, 1, profile.CurrentStreak)
	assert.Equal(t, 4, fx.badges.calls)
}

func TestMarkLessonCompleteIsIdempotent(t *testing.T) {
	fx := newProgressFixture(t, 1)
	ctx := context.Background()
	lessonID := fx.lessons[0]

	first, err := fx.svc.MarkLessonComplete(ctx, "student-1", CompleteLessonRequest{LessonID: lessonID, TimeSpent: 30})
	require.NoError(t, err)
	assert.True(t, first.NewlyCompleted)
	assert.True(t, first.CertificateAwarded)
	require.Len(t, first.BadgesAwarded, 1)

	second, err := fx.svc.MarkLessonComplete(ctx, "student-1", CompleteLessonRequest{LessonID: lessonID, TimeSpent: 45})
	require.NoError(t, err)
	assert.False(t, second.NewlyCompleted)
	assert.False(t, second.CertificateAwarded)
	assert.Empty(t, second.BadgesAwarded)
	assert.Equal(t, int64(75), second.TimeSpent)
	assert.Equal(t, float64(100), second.CourseProgress)

	assert.Equal(t, 1, fx.badges.calls)
	assert.Equal(t, 1, fx.profiles.profiles["student-1"].CoursesCompleted)
	assert.Equal(t, int64(75), fx.profiles.profiles["student-1"].TotalStudySeconds)
}

func TestMarkLessonCompleteRequiresEnrollment(t *testing.T) {
	fx := newProgressFixture(t, 2)

	_, err := fx.svc.MarkLessonComplete(context.Background(), "student-2", CompleteLessonRequest{LessonID: fx.lessons[0]})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
	assert.Empty(t, fx.repo.rows)
	assert.NotContains(t, fx.profiles.profiles, "student-2")
}

// concurrentProfileRepo lets a test change the stored profile while a
// completion request is in flight.
type concurrentProfileRepo struct {
	*mockProfileRepo
	onStudyTime func()
}

func (c *concurrentProfileRepo) AddStudySeconds(ctx context.Context, userID string, seconds int64) error {
	if err := c.mockProfileRepo.AddStudySeconds(ctx, userID, seconds); err != nil {
		return err
	}
	c.onStudyTime()
	return nil
}

func TestMarkLessonCompleteStreakUsesSavedProfile(t *testing.T) {
	fx := newProgressFixture(t, 2)
	fx.svc.profiles = &concurrentProfileRepo{mockProfileRepo: fx.profiles, onStudyTime: func() {
		fx.profiles.profiles["student-1"].LongestStreak = 9
	}}

	resp, err := fx.svc.MarkLessonComplete(context.Background(), "student-1", CompleteLessonRequest{LessonID: fx.lessons[0], TimeSpent: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.CurrentStreak)
	stored := fx.profiles.profiles["student-1"]
	assert.Equal(t, 9, stored.LongestStreak)
	assert.Equal(t, int64(30), stored.TotalStudySeconds)
}

func TestMarkLessonCompleteUnknownLesson(t *testing.T) {
	fx := newProgressFixture(t, 1)

	_, err := fx.svc.MarkLessonComplete(context.Background(), "student-1", CompleteLessonRequest{LessonID: uuid.NewString()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestMarkLessonCompleteValidation(t *testing.T) {
	fx := newProgressFixture(t, 1)

	_, err := fx.svc.MarkLessonComplete(context.Background(), "student-1", CompleteLessonRequest{LessonID: "not-a-uuid", TimeSpent: -5})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "lesson_id")
	assert.Contains(t, appErr.Fields, "time_spent")
}

func TestMarkLessonCompleteSurvivesBadgeFailure(t *testing.T) {
	fx := newProgressFixture(t, 2)
	fx.badges.err = errors.New("badge store down")

	resp, err := fx.svc.MarkLessonComplete(context.Background(), "student-1", CompleteLessonRequest{LessonID: fx.lessons[0]})
	require.NoError(t, err)
	assert.True(t, resp.NewlyCompleted)
	assert.Empty(t, resp.BadgesAwarded)
	assert.Equal(t, float64(50), resp.CourseProgress)
}

func TestLessonViewNavigation(t *testing.T) {
	fx := newProgressFixture(t, 3)

	view, err := fx.svc.LessonView(context.Background(), "student-1", fx.lessons[1])
	require.NoError(t, err)
	require.NotNil(t, view.Navigation.PreviousLessonID)
	require.NotNil(t, view.Navigation.NextLessonID)
	assert.Equal(t, fx.lessons[0], *view.Navigation.PreviousLessonID)
	assert.Equal(t, fx.lessons[2], *view.Navigation.NextLessonID)
	assert.Nil(t, view.Note)
	assert.Len(t, view.Resources, 1)
	assert.False(t, view.Progress.IsCompleted)

	first, err := fx.svc.LessonView(context.Background(), "student-1", fx.lessons[0])
	require.NoError(t, err)
	assert.Nil(t, first.Navigation.PreviousLessonID)
}

func TestModuleProgressAnonymous(t *testing.T) {
	fx := newProgressFixture(t, 1)

	result, err := fx.svc.ModuleProgress(context.Background(), "", "module-1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, float64(0), result.Progress)
}
