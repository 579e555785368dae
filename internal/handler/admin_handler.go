package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/internal/service"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
	"github.com/noah-isme/studio-register-api/pkg/response"
)

type adminService interface {
	ReconcileSessions(ctx context.Context, sessionIDs []string) ([]service.ReconcileOutcome, []string, error)
	MarkPresent(ctx context.Context, recordIDs []string) (*service.BulkResult, []string, error)
	MarkAbsent(ctx context.Context, recordIDs []string) (*service.BulkResult, []string, error)
	SessionSummary(ctx context.Context, sessionID string) (models.AttendanceSummary, string, error)
}

type attendanceLister interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceListItem, *models.Pagination, error)
}

// ReconcileRequest selects the sessions to reconcile.
type ReconcileRequest struct {
	SessionIDs []string `json:"session_ids"`
}

// PresenceRequest selects the attendance records of a bulk mark.
type PresenceRequest struct {
	RecordIDs []string `json:"record_ids"`
}

// AdminHandler exposes the bulk actions reserved to administrators.
type AdminHandler struct {
	admin      adminService
	attendance attendanceLister
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(admin adminService, attendance attendanceLister) *AdminHandler {
	return &AdminHandler{admin: admin, attendance: attendance}
}

// ReconcileSessions godoc
// @Summary Create missing attendance records
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body ReconcileRequest true "Sessions"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/sessions/reconcile [post]
func (h *AdminHandler) ReconcileSessions(c *gin.Context) {
	var req ReconcileRequest
	if !bindJSON(c, &req) {
		return
	}
	outcomes, messages, err := h.admin.ReconcileSessions(c.Request.Context(), req.SessionIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithMessages(c, outcomes, messages)
}

// MarkPresent godoc
// @Summary Mark records present
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body PresenceRequest true "Records"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance/mark-present [post]
func (h *AdminHandler) MarkPresent(c *gin.Context) {
	h.markPresence(c, true)
}

// MarkAbsent godoc
// @Summary Mark records absent
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body PresenceRequest true "Records"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance/mark-absent [post]
func (h *AdminHandler) MarkAbsent(c *gin.Context) {
	h.markPresence(c, false)
}

func (h *AdminHandler) markPresence(c *gin.Context, present bool) {
	var req PresenceRequest
	if !bindJSON(c, &req) {
		return
	}
	mark := h.admin.MarkAbsent
	if present {
		mark = h.admin.MarkPresent
	}
	result, messages, err := mark(c.Request.Context(), req.RecordIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithMessages(c, result, messages)
}

// ListAttendance godoc
// @Summary List attendance records
// @Description Ordered by session date descending, then student last name
// @Tags Admin
// @Produce json
// @Param status query string false "present, absent, late or excused"
// @Param present query bool false "Presence flag"
// @Param group_id query string false "Group"
// @Param date_from query string false "Inclusive lower bound (YYYY-MM-DD)"
// @Param date_to query string false "Inclusive upper bound (YYYY-MM-DD)"
// @Param search query string false "Student name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/attendance [get]
func (h *AdminHandler) ListAttendance(c *gin.Context) {
	filter, err := attendanceFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.attendance.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// SessionSummary godoc
// @Summary Attendance summary of a session
// @Tags Admin
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /admin/sessions/{id}/summary [get]
func (h *AdminHandler) SessionSummary(c *gin.Context) {
	summary, text, err := h.admin.SessionSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"display": text})
}

func attendanceFilterFromQuery(c *gin.Context) (models.AttendanceFilter, error) {
	filter := models.AttendanceFilter{
		GroupID: strings.TrimSpace(c.Query("group_id")),
		Search:  strings.TrimSpace(c.Query("search")),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.AttendanceStatus(raw)
		if !status.Valid() {
			return filter, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid query parameter"), map[string]string{"status": "must be present, absent, late or excused"})
		}
		filter.Status = &status
	}
	var err error
	if filter.Present, err = queryBool(c, "present"); err != nil {
		return filter, err
	}
	if filter.DateFrom, err = queryDate(c, "date_from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = queryDate(c, "date_to"); err != nil {
		return filter, err
	}
	if filter.Page, err = queryInt(c, "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = queryInt(c, "limit"); err != nil {
		return filter, err
	}
	return filter, nil
}
