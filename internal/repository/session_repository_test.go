package repository

import (
	"context"
	"database/sql"
	"net/http"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

var sessionRowColumns = []string{"id", "date", "start_time", "duration", "group_id", "notes", "created_at", "updated_at"}

func TestSessionRepositoryListInclusiveRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE se.group_id = $1 AND se.date >= $2 AND se.date <= $3")+
		`\s+GROUP BY se.id\s+`+regexp.QuoteMeta("ORDER BY se.date DESC, se.start_time ASC LIMIT 10 OFFSET 10")).
		WithArgs("g1", from, to).
		WillReturnRows(sqlmock.NewRows(append(sessionRowColumns, "attendance_total", "attendance_present")).
			AddRow("se1", from, "18:00:00", 90, "g1", "", now, now, 10, 7))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sessions se WHERE se.group_id = $1 AND se.date >= $2 AND se.date <= $3")).
		WithArgs("g1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	items, total, err := repo.List(context.Background(), models.SessionFilter{GroupID: "g1", DateFrom: &from, DateTo: &to, Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ClockTime{Hour: 18}, items[0].StartTime)
	assert.Equal(t, 7, items[0].AttendancePresent)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "18:30:00", 60, "g1", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{Date: time.Now(), StartTime: models.ClockTime{Hour: 18, Minute: 30}, Duration: 60, GroupID: "g1"}
	require.NoError(t, repo.Create(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateDuplicateSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "sessions_date_group_start_key"})

	session := &models.Session{Date: time.Now(), StartTime: models.DefaultStartTime, Duration: 90, GroupID: "g1"}
	err := repo.Create(context.Background(), session)
	require.Error(t, err)
	assert.True(t, appErrors.IsUniqueViolation(err))
	assert.Equal(t, http.StatusConflict, appErrors.FromStore(err, "session already exists", "group not found", "failed to create session").Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sessions WHERE group_id = $1 AND date = $2 AND start_time = $3 LIMIT 1")).
		WithArgs("g1", day, "18:00:00").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "g1", day, models.DefaultStartTime, "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListCalendar(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE se.group_id = $1 AND se.date BETWEEN $2 AND $3")).
		WithArgs("g1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "date", "start_time", "duration", "present", "total"}).
			AddRow("se1", from, "18:00:00", 90, 3, 4))

	rows, err := repo.ListCalendar(context.Background(), "g1", from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDMalformedID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("FROM sessions").
		WithArgs("abc").
		WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})

	_, err := repo.FindByID(context.Background(), "abc")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
