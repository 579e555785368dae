package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/internal/service"
	"github.com/noah-isme/studio-register-api/pkg/response"
)

type groupService interface {
	Home(ctx context.Context) (*service.HomeOverview, error)
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.GroupDetail, error)
	Create(ctx context.Context, req service.GroupRequest) (*models.Group, error)
	Update(ctx context.Context, id string, req service.GroupRequest) (*models.Group, error)
	Delete(ctx context.Context, id string) error
}

// GroupHandler exposes group endpoints.
type GroupHandler struct {
	groups groupService
}

// NewGroupHandler constructs GroupHandler.
func NewGroupHandler(groups groupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// Home godoc
// @Summary Active groups overview
// @Description Active groups with participant counts and sessions held in the current academic year
// @Tags Groups
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /groups/home [get]
func (h *GroupHandler) Home(c *gin.Context) {
	overview, err := h.groups.Home(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// List godoc
// @Summary List groups
// @Tags Groups
// @Produce json
// @Param age_category query string false "junior, middle, senior, preparatory or kids"
// @Param year query int false "Cohort year"
// @Param gender query string false "M or F"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /groups [get]
func (h *GroupHandler) List(c *gin.Context) {
	var filter models.GroupFilter
	filter.AgeCategory = models.AgeCategory(strings.TrimSpace(c.Query("age_category")))
	filter.Gender = models.Gender(strings.ToUpper(strings.TrimSpace(c.Query("gender"))))

	var err error
	if filter.Year, err = queryInt(c, "year"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Active, err = queryBool(c, "active"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Page, err = queryInt(c, "page"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.PageSize, err = queryInt(c, "limit"); err != nil {
		response.Error(c, err)
		return
	}

	groups, pagination, err := h.groups.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, pagination)
}

// Get godoc
// @Summary Get group detail
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Create godoc
// @Summary Create group
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body service.GroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req service.GroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Update godoc
// @Summary Update group
// @Tags Groups
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body service.GroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups/{id} [put]
func (h *GroupHandler) Update(c *gin.Context) {
	var req service.GroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.groups.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// Delete godoc
// @Summary Delete group
// @Description Refused with 412 while students or sessions reference the group
// @Tags Groups
// @Param id path string true "Group ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
