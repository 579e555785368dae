package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/internal/service"
	"github.com/noah-isme/studio-register-api/pkg/response"
)

type attendanceService interface {
	Sheet(ctx context.Context, sessionID string) (*models.AttendanceSheet, error)
	SaveSheet(ctx context.Context, sessionID string, req service.SaveSheetRequest) (*models.AttendanceSheet, error)
	UpdateRecord(ctx context.Context, id string, req service.UpdateRecordRequest) (*models.AttendanceRecord, error)
	Export(ctx context.Context, sessionID, format string) (*service.ExportFile, error)
}

// AttendanceHandler exposes the attendance sheet of a session.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Sheet godoc
// @Summary Attendance sheet
// @Description Creates missing records for current participants, then returns the sheet with its summary
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	sheet, err := h.attendance.Sheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// SaveSheet godoc
// @Summary Save attendance sheet
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.SaveSheetRequest true "Marks"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions/{id}/attendance [put]
func (h *AttendanceHandler) SaveSheet(c *gin.Context) {
	var req service.SaveSheetRequest
	if !bindJSON(c, &req) {
		return
	}
	sheet, err := h.attendance.SaveSheet(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// UpdateRecord godoc
// @Summary Update one attendance record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance record ID"
// @Param payload body service.UpdateRecordRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [patch]
func (h *AttendanceHandler) UpdateRecord(c *gin.Context) {
	var req service.UpdateRecordRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.attendance.UpdateRecord(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Export godoc
// @Summary Export attendance sheet
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /sessions/{id}/attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	file, err := h.attendance.Export(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}
