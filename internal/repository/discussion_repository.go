package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edufin-api/internal/models"
)

const discussionDetailSelect = `SELECT d.id, d.lesson_id, d.title, d.body, d.created_by, d.is_active, d.created_at, d.updated_at,
    u.full_name AS author_name,
    (SELECT COUNT(*) FROM comments c WHERE c.discussion_id = d.id AND c.is_approved) AS comment_count
FROM discussions d
JOIN users u ON u.id = d.created_by`

const commentDetailSelect = `SELECT c.id, c.discussion_id, c.lesson_id, c.parent_id, c.author_id, c.body, c.is_approved, c.created_at, c.updated_at,
    u.full_name AS author_name
FROM comments c
JOIN users u ON u.id = c.author_id`

// DiscussionRepository manages lesson threads, comments and personal notes.
type DiscussionRepository struct {
	db *sqlx.DB
}

// NewDiscussionRepository constructs the repository.
func NewDiscussionRepository(db *sqlx.DB) *DiscussionRepository {
	return &DiscussionRepository{db: db}
}

// ListByLesson returns the active threads of a lesson, newest first.
func (r *DiscussionRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.DiscussionDetail, error) {
	query := discussionDetailSelect + ` WHERE d.lesson_id = $1 AND d.is_active ORDER BY d.created_at DESC`
	var discussions []models.DiscussionDetail
	if err := r.db.SelectContext(ctx, &discussions, query, lessonID); err != nil {
		return nil, fmt.Errorf("list discussions: %w", err)
	}
	return discussions, nil
}

// FindByID returns an active thread.
func (r *DiscussionRepository) FindByID(ctx context.Context, id string) (*models.DiscussionDetail, error) {
	query := discussionDetailSelect + ` WHERE d.id = $1 AND d.is_active LIMIT 1`
	var discussion models.DiscussionDetail
	if err := r.db.GetContext(ctx, &discussion, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find discussion: %w", err)
	}
	return &discussion, nil
}

// Create inserts a thread.
func (r *DiscussionRepository) Create(ctx context.Context, discussion *models.Discussion) error {
	prepareIDs(&discussion.ID, &discussion.CreatedAt, &discussion.UpdatedAt)
	discussion.IsActive = true
	const query = `INSERT INTO discussions (id, lesson_id, title, body, created_by, is_active, created_at, updated_at) VALUES (:id, :lesson_id, :title, :body, :created_by, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, discussion); err != nil {
		return fmt.Errorf("create discussion: %w", err)
	}
	return nil
}

// FindComment returns a comment by id.
func (r *DiscussionRepository) FindComment(ctx context.Context, id string) (*models.Comment, error) {
	const query = `SELECT id, discussion_id, lesson_id, parent_id, author_id, body, is_approved, created_at, updated_at FROM comments WHERE id = $1 LIMIT 1`
	var comment models.Comment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find comment: %w", err)
	}
	return &comment, nil
}

// CreateComment inserts a comment.
func (r *DiscussionRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	prepareIDs(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
	const query = `INSERT INTO comments (id, discussion_id, lesson_id, parent_id, author_id, body, is_approved, created_at, updated_at) VALUES (:id, :discussion_id, :lesson_id, :parent_id, :author_id, :body, :is_approved, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// ListDiscussionComments returns approved comments of a thread, oldest first.
func (r *DiscussionRepository) ListDiscussionComments(ctx context.Context, discussionID string) ([]models.CommentDetail, error) {
	return r.listComments(ctx, "c.discussion_id", discussionID)
}

// ListLessonComments returns approved comments posted directly on a lesson.
func (r *DiscussionRepository) ListLessonComments(ctx context.Context, lessonID string) ([]models.CommentDetail, error) {
	return r.listComments(ctx, "c.lesson_id", lessonID)
}

func (r *DiscussionRepository) listComments(ctx context.Context, column, value string) ([]models.CommentDetail, error) {
	query := commentDetailSelect + ` WHERE ` + column + ` = $1 AND c.is_approved ORDER BY c.created_at`
	var comments []models.CommentDetail
	if err := r.db.SelectContext(ctx, &comments, query, value); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// FindNote returns the user's note on a lesson.
func (r *DiscussionRepository) FindNote(ctx context.Context, lessonID, userID string) (*models.Note, error) {
	const query = `SELECT id, lesson_id, user_id, content, created_at, updated_at FROM notes WHERE lesson_id = $1 AND user_id = $2 LIMIT 1`
	var note models.Note
	if err := r.db.GetContext(ctx, &note, query, lessonID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find note: %w", err)
	}
	return &note, nil
}

// UpsertNote stores the user's note on a lesson, replacing any previous content.
func (r *DiscussionRepository) UpsertNote(ctx context.Context, note *models.Note) error {
	now := time.Now().UTC()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.CreatedAt = now
	note.UpdatedAt = now
	const query = `INSERT INTO notes (id, lesson_id, user_id, content, created_at, updated_at)
VALUES (:id, :lesson_id, :user_id, :content, :created_at, :updated_at)
ON CONFLICT (lesson_id, user_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at
RETURNING id, created_at`
	rows, err := r.db.NamedQueryContext(ctx, query, note)
	if err != nil {
		return fmt.Errorf("upsert note: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&note.ID, &note.CreatedAt); err != nil {
			return fmt.Errorf("scan note: %w", err)
		}
	}
	return rows.Err()
}
