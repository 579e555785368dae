package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/studio-register-api/api/swagger"
	"github.com/noah-isme/studio-register-api/internal/handler"
	"github.com/noah-isme/studio-register-api/internal/repository"
	"github.com/noah-isme/studio-register-api/internal/service"
	"github.com/noah-isme/studio-register-api/pkg/cache"
	"github.com/noah-isme/studio-register-api/pkg/config"
	"github.com/noah-isme/studio-register-api/pkg/database"
	"github.com/noah-isme/studio-register-api/pkg/logger"
)

// @title Studio Register API
// @version 1.0.0
// @description Attendance register of a dance studio: groups, students, rehearsal sessions and their attendance sheets.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, cfg.Cache.Prefix, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	studio := service.StudioConfig{
		Location:         cfg.Studio.Location,
		PresenceWindow:   cfg.Studio.PresenceWindow,
		SessionsPageSize: cfg.Studio.SessionsPageSize,
	}
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	groupSvc := service.NewGroupService(groupRepo, cacheSvc, studio, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, groupRepo, cacheSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, groupRepo, cacheSvc, metrics, studio, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, groupRepo, attendanceSvc, cacheSvc, studio, validate, logr)
	calendarSvc := service.NewCalendarService(sessionRepo, groupRepo, cacheSvc, studio, logr)
	adminSvc := service.NewAdminService(attendanceSvc, sessionRepo, groupRepo, logr)

	checks := map[string]handler.Pinger{"postgres": db}
	if cacheRepo != nil {
		checks["redis"] = handler.PingFunc(cacheRepo.Ping)
	}

	router := newRouter(cfg, logr, handlers{
		auth:       handler.NewAuthHandler(authSvc),
		groups:     handler.NewGroupHandler(groupSvc),
		students:   handler.NewStudentHandler(studentSvc),
		sessions:   handler.NewSessionHandler(sessionSvc),
		attendance: handler.NewAttendanceHandler(attendanceSvc),
		calendar:   handler.NewCalendarHandler(calendarSvc),
		admin:      handler.NewAdminHandler(adminSvc, attendanceSvc),
		users:      handler.NewUserHandler(service.NewUserService(userRepo, authSvc, validate, logr)),
		probes:     handler.NewMetricsHandler(metrics, checks),
	}, authSvc, metrics)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	case sig := <-shutdown:
		logr.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("graceful shutdown failed", zap.Error(err))
			_ = server.Close()
		}
	}
}
