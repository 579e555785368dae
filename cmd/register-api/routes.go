package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-register-api/internal/handler"
	"github.com/noah-isme/studio-register-api/internal/middleware"
	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/internal/service"
	"github.com/noah-isme/studio-register-api/pkg/config"
	"github.com/noah-isme/studio-register-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/studio-register-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/studio-register-api/pkg/middleware/requestid"
)

type handlers struct {
	auth       *handler.AuthHandler
	groups     *handler.GroupHandler
	students   *handler.StudentHandler
	sessions   *handler.SessionHandler
	attendance *handler.AttendanceHandler
	calendar   *handler.CalendarHandler
	admin      *handler.AdminHandler
	users      *handler.UserHandler
	probes     *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, h handlers, tokens middleware.TokenValidator, metrics *service.MetricsService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.probes.Health)
	r.GET("/ready", h.probes.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", h.probes.Prometheus)
	}
	if cfg.Docs.Enabled && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/" + strings.Trim(cfg.APIPrefix, "/"))

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/register", h.auth.Register)

	secured := api.Group("", middleware.JWT(tokens))
	secured.GET("/auth/profile", h.auth.Profile)
	secured.PUT("/auth/profile", h.auth.UpdateProfile)
	secured.POST("/auth/change-password", h.auth.ChangePassword)

	secured.GET("/groups/home", h.groups.Home)
	registerGroupRoutes(secured, h)
	registerStudentRoutes(secured, h)
	registerSessionRoutes(secured, h)

	secured.GET("/sessions/:id/attendance", h.attendance.Sheet)
	secured.PUT("/sessions/:id/attendance", h.attendance.SaveSheet)
	secured.GET("/sessions/:id/attendance/export", h.attendance.Export)
	secured.PATCH("/attendance/:id", h.attendance.UpdateRecord)
	secured.GET("/groups/:id/calendar", h.calendar.Month)

	admin := secured.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	registerGroupRoutes(admin, h)
	registerStudentRoutes(admin, h)
	registerSessionRoutes(admin, h)
	admin.POST("/sessions/reconcile", h.admin.ReconcileSessions)
	admin.GET("/sessions/:id/summary", h.admin.SessionSummary)
	admin.GET("/attendance", h.admin.ListAttendance)
	admin.POST("/attendance/mark-present", h.admin.MarkPresent)
	admin.POST("/attendance/mark-absent", h.admin.MarkAbsent)
	admin.GET("/metrics/summary", h.probes.Snapshot)
	admin.GET("/users", h.users.List)
	admin.POST("/users", h.users.Create)
	admin.GET("/users/:id", h.users.Get)
	admin.PUT("/users/:id", h.users.Update)
	admin.DELETE("/users/:id", h.users.Delete)

	return r
}

func registerGroupRoutes(rg *gin.RouterGroup, h handlers) {
	rg.GET("/groups", h.groups.List)
	rg.POST("/groups", h.groups.Create)
	rg.GET("/groups/:id", h.groups.Get)
	rg.PUT("/groups/:id", h.groups.Update)
	rg.DELETE("/groups/:id", h.groups.Delete)
}

func registerStudentRoutes(rg *gin.RouterGroup, h handlers) {
	rg.GET("/students", h.students.List)
	rg.POST("/students", h.students.Create)
	rg.GET("/students/:id", h.students.Get)
	rg.PUT("/students/:id", h.students.Update)
	rg.DELETE("/students/:id", h.students.Delete)
}

func registerSessionRoutes(rg *gin.RouterGroup, h handlers) {
	rg.GET("/groups/:id/sessions", h.sessions.ListByGroup)
	rg.POST("/groups/:id/sessions", h.sessions.Create)
	rg.GET("/sessions/:id", h.sessions.Get)
	rg.PUT("/sessions/:id", h.sessions.Update)
	rg.DELETE("/sessions/:id", h.sessions.Delete)
}
