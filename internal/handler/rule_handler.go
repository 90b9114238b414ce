package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ruangpulih/clinic-api/internal/models"
	"github.com/ruangpulih/clinic-api/internal/service"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
	"github.com/ruangpulih/clinic-api/pkg/response"
)

// RuleHandler manages scheduling rule endpoints.
type RuleHandler struct {
	service *service.RuleService
}

// NewRuleHandler constructs handler.
func NewRuleHandler(svc *service.RuleService) *RuleHandler {
	return &RuleHandler{service: svc}
}

// List godoc
// @Summary List scheduling rules
// @Tags Rules
// @Produce json
// @Param type query string false "Filter by rule type"
// @Param isActive query bool false "Filter by active flag"
// @Param therapistId query string false "Only rules applying to therapist"
// @Param serviceId query string false "Only rules applying to service"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /scheduling/rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	var filter models.RuleFilter
	filter.Type = strings.ToUpper(c.Query("type"))
	filter.TherapistID = c.Query("therapistId")
	filter.ServiceID = c.Query("serviceId")
	if raw := c.Query("isActive"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.IsActive = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}

	rules, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, pagination)
}

// Get godoc
// @Summary Get a scheduling rule
// @Tags Rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} response.Envelope
// @Router /scheduling/rules/{id} [get]
func (h *RuleHandler) Get(c *gin.Context) {
	rule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Create godoc
// @Summary Create a scheduling rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param payload body service.CreateRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Router /scheduling/rules [post]
func (h *RuleHandler) Create(c *gin.Context) {
	var req service.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rule, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// Update godoc
// @Summary Update a scheduling rule
// @Tags Rules
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body service.UpdateRuleRequest true "Rule payload"
// @Success 200 {object} response.Envelope
// @Router /scheduling/rules/{id} [put]
func (h *RuleHandler) Update(c *gin.Context) {
	var req service.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	rule, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rule, nil)
}

// Delete godoc
// @Summary Deactivate a scheduling rule
// @Tags Rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 204
// @Router /scheduling/rules/{id} [delete]
func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Test godoc
// @Summary Dry-run one rule against a candidate session
// @Tags Rules
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param payload body service.ValidateSchedulingRequest true "Candidate session"
// @Success 200 {object} response.Envelope
// @Router /scheduling/rules/{id}/test [post]
func (h *RuleHandler) Test(c *gin.Context) {
	var req service.ValidateSchedulingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Test(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
