package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/pkg/response"
)

type calendarService interface {
	Month(ctx context.Context, groupID string, year, month int) (*models.CalendarMonth, error)
}

// CalendarHandler serves month views of a group's sessions.
type CalendarHandler struct {
	calendar calendarService
}

// NewCalendarHandler constructs CalendarHandler.
func NewCalendarHandler(calendar calendarService) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

// Month godoc
// @Summary Group calendar
// @Tags Calendar
// @Produce json
// @Param id path string true "Group ID"
// @Param year query int false "Year, defaults to the current one"
// @Param month query int false "Month 1-12, defaults to the current one"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/calendar [get]
func (h *CalendarHandler) Month(c *gin.Context) {
	year, err := queryInt(c, "year")
	if err != nil {
		response.Error(c, err)
		return
	}
	month, err := queryInt(c, "month")
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.calendar.Month(c.Request.Context(), c.Param("id"), year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
