package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword // swapped in tests

	errHelp = errors.New("help provided")
)

type migrateFunc func(ctx context.Context, command string, args ...string) error

type userCreator interface {
	CreateUser(ctx context.Context, user *models.User, password string) error
}

type sessionReconciler interface {
	ReconcileSessions(ctx context.Context, sessionIDs []string) ([]service.ReconcileOutcome, []string, error)
}

type commandLine struct {
	migrate migrateFunc
	users   userCreator
	admin   sessionReconciler
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                     - run a goose command (up, down, status, up-to N, redo, version)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL [-admin] [-first F] [-last L] - create a user, the password is prompted next")
	fmt.Fprintln(cli.out, "  reconcile -sessions ID[,ID...]             - create missing attendance records")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2], args[3:]...)
	case "adduser":
		return cli.addUser(ctx, args[2:])
	case "reconcile":
		return cli.reconcile(ctx, args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) addUser(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	email := cmd.String("email", "", "The user's email. The password will be prompted next.")
	admin := cmd.Bool("admin", false, "Grant the ADMIN role instead of INSTRUCTOR.")
	first := cmd.String("first", "", "First name.")
	last := cmd.String("last", "", "Last name.")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if *email == "" {
		cmd.Usage()
		return errHelp
	}

	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return errHelp
	}

	user := &models.User{Email: *email, FirstName: *first, LastName: *last, Role: models.RoleInstructor}
	if *admin {
		user.Role = models.RoleAdmin
	}
	if err := cli.users.CreateUser(ctx, user, string(pwd)); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s user %s\n", user.Role, user.Email)
	return nil
}

func (cli *commandLine) reconcile(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	sessions := cmd.String("sessions", "", "Comma separated session IDs.")
	if err := cmd.Parse(args); err != nil {
		return errHelp
	}
	if strings.TrimSpace(*sessions) == "" {
		cmd.Usage()
		return errHelp
	}
	ids := strings.Split(*sessions, ",")

	outcomes, messages, err := cli.admin.ReconcileSessions(ctx, ids)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		fmt.Fprintln(cli.out, msg)
	}
	if failed := countFailures(outcomes); failed > 0 {
		return fmt.Errorf("reconcile failed for %d of %d sessions", failed, len(outcomes))
	}
	return nil
}

func countFailures(outcomes []service.ReconcileOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Error != "" {
			n++
		}
	}
	return n
}
