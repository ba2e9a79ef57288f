package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edufin-api/internal/models"
)

func TestBadgeAward(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBadgeRepository(db)

	mock.ExpectExec("INSERT INTO user_badges").
		WithArgs(sqlmock.AnyArg(), "u1", "b1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO user_badges").
		WithArgs(sqlmock.AnyArg(), "u1", "b1", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "user_badges_user_badge_key"})

	created, err := repo.Award(context.Background(), "u1", "b1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Award(context.Background(), "u1", "b1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBadgeListActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBadgeRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM badges WHERE is_active")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "icon", "color", "badge_type", "required_value", "is_active", "created_at"}).
			AddRow("b1", "First Steps", "", "star", "gold", "completion", 1, true, now))

	badges, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, models.BadgeCompletion, badges[0].Type)
	assert.Equal(t, int64(1), badges[0].RequiredValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBadgeEngagementCount(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBadgeRepository(db)

	mock.ExpectQuery("FROM discussions WHERE created_by = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.EngagementCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
