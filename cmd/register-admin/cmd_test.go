package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/internal/service"
)

type fakeUsers struct {
	created  *models.User
	password string
}

func (f *fakeUsers) CreateUser(ctx context.Context, user *models.User, password string) error {
	f.created, f.password = user, password
	return nil
}

type fakeReconciler struct {
	ids []string
}

func (f *fakeReconciler) ReconcileSessions(ctx context.Context, ids []string) ([]service.ReconcileOutcome, []string, error) {
	f.ids = ids
	outcomes := make([]service.ReconcileOutcome, 0, len(ids))
	messages := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "ghost" {
			outcomes = append(outcomes, service.ReconcileOutcome{SessionID: id, Error: "session not found"})
			messages = append(messages, "Failed to create records for session ghost: session not found")
			continue
		}
		outcomes = append(outcomes, service.ReconcileOutcome{SessionID: id, Created: 2})
		messages = append(messages, "Created 2 records for session "+id)
	}
	return outcomes, messages, nil
}

type cliTest struct {
	name    string
	args    []string // without program name
	wantErr error
}

func setup() (*commandLine, *fakeUsers, *fakeReconciler, *[]string, *bytes.Buffer) {
	users := &fakeUsers{}
	reconciler := &fakeReconciler{}
	var migrated []string
	out := &bytes.Buffer{}
	cli := &commandLine{
		migrate: func(ctx context.Context, command string, args ...string) error {
			migrated = append(append(migrated, command), args...)
			return nil
		},
		users: users,
		admin: reconciler,
		out:   out,
	}
	return cli, users, reconciler, &migrated, out
}

func TestCommandLineUsage(t *testing.T) {
	cli, _, _, _, _ := setup()
	readPasswordFunc = func(int) ([]byte, error) { return nil, nil }

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate without subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "adduser without email", args: []string{"adduser"}, wantErr: errHelp},
		{name: "adduser with empty password", args: []string{"adduser", "-email", "a@b.cd"}, wantErr: errHelp},
		{name: "adduser with unknown flag", args: []string{"adduser", "-lol"}, wantErr: errHelp},
		{name: "reconcile without sessions", args: []string{"reconcile"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(context.Background(), append([]string{"admin"}, tt.args...))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCommandLineMigrate(t *testing.T) {
	cli, _, _, migrated, _ := setup()

	require.NoError(t, cli.run(context.Background(), []string{"admin", "migrate", "up-to", "2"}))
	assert.Equal(t, []string{"up-to", "2"}, *migrated)
}

func TestCommandLineAddUser(t *testing.T) {
	cli, users, _, _, out := setup()
	readPasswordFunc = func(int) ([]byte, error) { return []byte("s3cretpass"), nil }

	require.NoError(t, cli.run(context.Background(), []string{"admin", "adduser", "-email", "boss@studio.test", "-admin", "-first", "Anna"}))
	require.NotNil(t, users.created)
	assert.Equal(t, models.RoleAdmin, users.created.Role)
	assert.Equal(t, "Anna", users.created.FirstName)
	assert.Equal(t, "s3cretpass", users.password)
	assert.Contains(t, out.String(), "created ADMIN user boss@studio.test")

	readPasswordFunc = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	assert.EqualError(t, cli.run(context.Background(), []string{"admin", "adduser", "-email", "x@studio.test"}), "no tty")
}

func TestCommandLineReconcile(t *testing.T) {
	cli, _, reconciler, _, out := setup()

	require.NoError(t, cli.run(context.Background(), []string{"admin", "reconcile", "-sessions", "se1,se2"}))
	assert.Equal(t, []string{"se1", "se2"}, reconciler.ids)
	assert.Contains(t, out.String(), "Created 2 records for session se2")

	err := cli.run(context.Background(), []string{"admin", "reconcile", "-sessions", "se1,ghost"})
	assert.EqualError(t, err, "reconcile failed for 1 of 2 sessions")
}
