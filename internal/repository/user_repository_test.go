package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-register-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "email", "password_hash", "first_name", "last_name", "phone", "bio", "birth_date", "role", "active", "last_login", "created_at", "updated_at"}

func TestFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("1", "coach@example.com", "hash", "Olga", "Petrova", nil, "", nil, string(models.RoleInstructor), true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("coach@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "coach@example.com")
	require.NoError(t, err)
	assert.Equal(t, "coach@example.com", user.Email)
	assert.Equal(t, "Olga Petrova", user.FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "coach@example.com", PasswordHash: "hash", Role: models.RoleInstructor, Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfile(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET first_name = ?, last_name = ?, phone = ?, bio = ?, birth_date = ?, updated_at = ? WHERE id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateProfile(context.Background(), &models.User{ID: "u1", FirstName: "Olga", Bio: "Ballet"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersFiltersRoleAndSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE 1=1 AND role = $1 AND (LOWER(email) LIKE $2 OR LOWER(first_name) LIKE $2 OR LOWER(last_name) LIKE $2) ORDER BY last_name, first_name, email LIMIT 20 OFFSET 20")).
		WithArgs(string(models.RoleInstructor), "%olga%").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("1", "olga@example.com", "hash", "Olga", "Petrova", nil, "", nil, string(models.RoleInstructor), true, nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1")).
		WithArgs(string(models.RoleInstructor), "%olga%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: models.RoleInstructor, Search: "Olga", Page: 2})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, 21, total)
	assert.Equal(t, "olga@example.com", users[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAccountMissingUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET first_name = ?, last_name = ?, phone = ?, role = ?, active = ?, updated_at = ? WHERE id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAccount(context.Background(), &models.User{ID: "ghost", Role: models.RoleAdmin})
	assert.Equal(t, sql.ErrNoRows, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
