package models

import "time"

// Discussion is a lesson-scoped thread.
type Discussion struct {
	ID        string    `db:"id" json:"id"`
	LessonID  string    `db:"lesson_id" json:"lesson_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DiscussionDetail adds author and comment aggregates.
type DiscussionDetail struct {
	Discussion
	AuthorName   string `db:"author_name" json:"author_name"`
	CommentCount int    `db:"comment_count" json:"comment_count"`
}

// Comment belongs to exactly one of a discussion or a lesson, and may reply
// to another comment.
type Comment struct {
	ID           string    `db:"id" json:"id"`
	DiscussionID *string   `db:"discussion_id" json:"discussion_id,omitempty"`
	LessonID     *string   `db:"lesson_id" json:"lesson_id,omitempty"`
	ParentID     *string   `db:"parent_id" json:"parent_id,omitempty"`
	AuthorID     string    `db:"author_id" json:"author_id"`
	Body         string    `db:"body" json:"body"`
	IsApproved   bool      `db:"is_approved" json:"is_approved"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CommentDetail adds the author name.
type CommentDetail struct {
	Comment
	AuthorName string `db:"author_name" json:"author_name"`
}

// Note is a student's private note on a lesson. One per (lesson, user).
type Note struct {
	ID        string    `db:"id" json:"id"`
	LessonID  string    `db:"lesson_id" json:"lesson_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
