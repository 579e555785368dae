package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	prev := ""
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, strings.HasSuffix(name, ".sql"), name)
		assert.Greater(t, name, prev)
		prev = name

		body, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up")
		assert.Contains(t, string(body), "-- +goose Down")
	}
}

func TestEmbeddedMigrationsDeclareConstraints(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	require.NoError(t, err)

	var schema strings.Builder
	for _, entry := range entries {
		body, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+entry.Name())
		require.NoError(t, err)
		schema.Write(body)
	}
	ddl := strings.Join(strings.Fields(schema.String()), " ")

	for _, constraint := range []string{
		"CONSTRAINT groups_category_year_gender_key UNIQUE (age_category, year, gender)",
		"CONSTRAINT sessions_date_group_start_key UNIQUE (date, group_id, start_time)",
		"CONSTRAINT attendance_session_student_key UNIQUE (session_id, student_id)",
		"CONSTRAINT attendance_status_consistent CHECK ( (present AND status <> 'absent') OR (NOT present AND status IN ('absent', 'excused')) )",
	} {
		assert.Contains(t, ddl, constraint)
	}
}

func TestMigratePassesCommandThrough(t *testing.T) {
	orig := gooseRun
	defer func() { gooseRun = orig }()

	var gotCommand, gotDir string
	var gotArgs []string
	gooseRun = func(_ context.Context, command string, _ *sql.DB, dir string, args ...string) error {
		gotCommand, gotDir, gotArgs = command, dir, args
		return nil
	}

	require.NoError(t, Migrate(context.Background(), nil, "up-to", "2"))
	assert.Equal(t, "up-to", gotCommand)
	assert.Equal(t, migrationsDir, gotDir)
	assert.Equal(t, []string{"2"}, gotArgs)
}

func TestMigrateWrapsFailures(t *testing.T) {
	orig := gooseRun
	defer func() { gooseRun = orig }()

	boom := errors.New("boom")
	gooseRun = func(context.Context, string, *sql.DB, string, ...string) error { return boom }

	err := Migrate(context.Background(), nil, "down")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "goose down")
}
