package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-register-api/internal/repository"
	"github.com/noah-isme/studio-register-api/internal/service"
	"github.com/noah-isme/studio-register-api/pkg/config"
	"github.com/noah-isme/studio-register-api/pkg/database"
	"github.com/noah-isme/studio-register-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	studio := service.StudioConfig{Location: cfg.Studio.Location, PresenceWindow: cfg.Studio.PresenceWindow}
	validate := validator.New()
	sessionRepo := repository.NewSessionRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	// No Redis here: cached calendars refresh when their TTL runs out.
	attendanceSvc := service.NewAttendanceService(repository.NewAttendanceRepository(db), sessionRepo, groupRepo, nil, nil, studio, validate, logr)

	cli := commandLine{
		migrate: func(ctx context.Context, command string, args ...string) error {
			return database.Migrate(ctx, db.DB, command, args...)
		},
		users: service.NewAuthService(repository.NewUserRepository(db), validate, logr, service.AuthConfig{}),
		admin: service.NewAdminService(attendanceSvc, sessionRepo, groupRepo, logr),
		out:   os.Stdout,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			logr.Error("command failed", zap.Error(err))
		}
		_ = logr.Sync()
		os.Exit(1)
	}
}
