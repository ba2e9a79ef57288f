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
)

var enrollmentRowColumns = []string{"id", "student_id", "course_id", "active", "enrolled_at", "updated_at"}

func TestEnrollmentGetOrCreateInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))

	enrollment, created, err := repo.GetOrCreate(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, enrollment.Active)
	assert.NotEmpty(t, enrollment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentGetOrCreateRecoversFromRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_student_course_key"})
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows(enrollmentRowColumns).AddRow("e-existing", "s1", "c1", false, now, now))

	enrollment, created, err := repo.GetOrCreate(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "e-existing", enrollment.ID)
	assert.False(t, enrollment.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentGetOrCreateSurfacesOtherErrors(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "enrollments_course_id_fkey"})

	_, _, err := repo.GetOrCreate(context.Background(), "s1", "missing")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentListActiveComputesProgress(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.student_id = $1 AND e.active")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(append(enrollmentRowColumns, "course_title", "course_slug", "course_image_path", "total_lessons", "completed_lessons")).
			AddRow("e1", "s1", "c1", true, now, now, "Budgeting", "budgeting", nil, 3, 1).
			AddRow("e2", "s1", "c2", true, now, now, "Empty", "empty", nil, 0, 0))

	details, err := repo.ListActiveByStudent(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, 33.3, details[0].Progress)
	assert.Equal(t, float64(0), details[1].Progress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentIsActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := repo.IsActive(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.True(t, active)
	assert.NoError(t, mock.ExpectationsWereMet())
}
