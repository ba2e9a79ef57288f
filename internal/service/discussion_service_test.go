package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufin-api/internal/models"
	appErrors "github.com/noah-isme/edufin-api/pkg/errors"
)

type mockDiscussionRepo struct {
	discussions map[string]*models.DiscussionDetail
	comments    map[string]*models.Comment
	notes       map[string]*models.Note
}

func newMockDiscussionRepo() *mockDiscussionRepo {
	return &mockDiscussionRepo{
		discussions: map[string]*models.DiscussionDetail{},
		comments:    map[string]*models.Comment{},
		notes:       map[string]*models.Note{},
	}
}

func (m *mockDiscussionRepo) ListByLesson(ctx context.Context, lessonID string) ([]models.DiscussionDetail, error) {
	var list []models.DiscussionDetail
	for _, d := range m.discussions {
		if d.LessonID == lessonID && d.IsActive {
			list = append(list, *d)
		}
	}
	return list, nil
}

func (m *mockDiscussionRepo) FindByID(ctx context.Context, id string) (*models.DiscussionDetail, error) {
	if d, ok := m.discussions[id]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDiscussionRepo) Create(ctx context.Context, discussion *models.Discussion) error {
	discussion.ID = uuid.NewString()
	discussion.IsActive = true
	m.discussions[discussion.ID] = &models.DiscussionDetail{Discussion: *discussion}
	return nil
}

func (m *mockDiscussionRepo) FindComment(ctx context.Context, id string) (*models.Comment, error) {
	if c, ok := m.comments[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDiscussionRepo) CreateComment(ctx context.Context, comment *models.Comment) error {
	comment.ID = uuid.NewString()
	copied := *comment
	m.comments[comment.ID] = &copied
	return nil
}

func (m *mockDiscussionRepo) ListDiscussionComments(ctx context.Context, discussionID string) ([]models.CommentDetail, error) {
	var list []models.CommentDetail
	for _, c := range m.comments {
		if c.DiscussionID != nil && *c.DiscussionID == discussionID && c.IsApproved {
			list = append(list, models.CommentDetail{Comment: *c})
		}
	}
	return list, nil
}

func (m *mockDiscussionRepo) UpsertNote(ctx context.Context, note *models.Note) error {
	key := fmt.Sprintf("%s:%s", note.LessonID, note.UserID)
	if existing, ok := m.notes[key]; ok {
		note.ID = existing.ID
	} else {
		note.ID = uuid.NewString()
	}
	copied := *note
	m.notes[key] = &copied
	return nil
}

type discussionFixture struct {
	svc     *DiscussionService
	repo    *mockDiscussionRepo
	badges  *mockBadgeEvaluator
	lessonA string
	lessonB string
}

func newDiscussionFixture() *discussionFixture {
	lessonA, lessonB := uuid.NewString(), uuid.NewString()
	lessons := &mockLessonReader{lessons: map[string]*models.LessonContext{
		lessonA: {Lesson: models.Lesson{ID: lessonA}, CourseID: "course-1"},
		lessonB: {Lesson: models.Lesson{ID: lessonB}, CourseID: "course-1"},
	}}
	repo := newMockDiscussionRepo()
	badges := &mockBadgeEvaluator{}
	enrollments := &mockEnrollmentChecker{active: map[string]bool{"student-1:course-1": true}}
	svc := NewDiscussionService(repo, lessons, enrollments, badges, nil, nil)
	return &discussionFixture{svc: svc, repo: repo, badges: badges, lessonA: lessonA, lessonB: lessonB}
}

func TestDiscussionThreadLifecycle(t *testing.T) {
	fx := newDiscussionFixture()
	ctx := context.Background()

	discussion, err := fx.svc.Create(ctx, "student-1", fx.lessonA, CreateDiscussionRequest{Title: "  Closures? ", Body: "How do they capture?"})
	require.NoError(t, err)
	assert.Equal(t, "Closures?", discussion.Title)

	root, err := fx.svc.CommentOnDiscussion(ctx, "student-1", discussion.ID, CreateCommentRequest{Body: "By reference."})
	require.NoError(t, err)
	assert.True(t, root.IsApproved)

	reply, err := fx.svc.CommentOnDiscussion(ctx, "student-1", discussion.ID, CreateCommentRequest{Body: "Thanks", ParentID: &root.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	thread, err := fx.svc.Thread(ctx, "student-1", discussion.ID)
	require.NoError(t, err)
	assert.Len(t, thread.Comments, 2)
	assert.Equal(t, 3, fx.badges.calls)
}

func TestCommentReplyMustStayInThread(t *testing.T) {
	fx := newDiscussionFixture()
	ctx := context.Background()

	onA, err := fx.svc.CommentOnLesson(ctx, "student-1", fx.lessonA, CreateCommentRequest{Body: "Nice lesson"})
	require.NoError(t, err)

	_, err = fx.svc.CommentOnLesson(ctx, "student-1", fx.lessonB, CreateCommentRequest{Body: "Agreed", ParentID: &onA.ID})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "parent_id")

	missing := uuid.NewString()
	_, err = fx.svc.CommentOnLesson(ctx, "student-1", fx.lessonA, CreateCommentRequest{Body: "Agreed", ParentID: &missing})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDiscussionRequiresEnrollment(t *testing.T) {
	fx := newDiscussionFixture()
	ctx := context.Background()

	_, err := fx.svc.ListByLesson(ctx, "outsider", fx.lessonA)
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))

	_, err = fx.svc.Create(ctx, "outsider", fx.lessonA, CreateDiscussionRequest{Title: "Hi", Body: "Hello"})
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))

	_, err = fx.svc.SaveNote(ctx, "outsider", fx.lessonA, SaveNoteRequest{Content: "mine"})
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))
	assert.Zero(t, fx.badges.calls)
}

func TestDiscussionValidation(t *testing.T) {
	fx := newDiscussionFixture()

	_, err := fx.svc.Create(context.Background(), "student-1", fx.lessonA, CreateDiscussionRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "is required", appErr.Fields["title"])
	assert.Equal(t, "is required", appErr.Fields["body"])
}

func TestSaveNoteReplacesContent(t *testing.T) {
	fx := newDiscussionFixture()
	ctx := context.Background()

	first, err := fx.svc.SaveNote(ctx, "student-1", fx.lessonA, SaveNoteRequest{Content: "draft"})
	require.NoError(t, err)
	second, err := fx.svc.SaveNote(ctx, "student-1", fx.lessonA, SaveNoteRequest{Content: "final"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fx.repo.notes, 1)
	assert.Equal(t, "final", second.Content)
}
