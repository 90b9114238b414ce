package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ruangpulih/clinic-api/internal/models"
	"github.com/ruangpulih/clinic-api/internal/service"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
	"github.com/ruangpulih/clinic-api/pkg/response"
)

// TherapistHandler manages therapist endpoints.
type TherapistHandler struct {
	service *service.TherapistService
}

// NewTherapistHandler constructs handler.
func NewTherapistHandler(svc *service.TherapistService) *TherapistHandler {
	return &TherapistHandler{service: svc}
}

// List godoc
// @Summary List therapists
// @Tags Therapists
// @Produce json
// @Param search query string false "Search name or email"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /therapists [get]
func (h *TherapistHandler) List(c *gin.Context) {
	var filter models.TherapistFilter
	filter.Search = c.Query("search")
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	therapists, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, therapists, pagination)
}

// Get godoc
// @Summary Get a therapist
// @Tags Therapists
// @Produce json
// @Param id path string true "Therapist ID"
// @Success 200 {object} response.Envelope
// @Router /therapists/{id} [get]
func (h *TherapistHandler) Get(c *gin.Context) {
	therapist, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, therapist, nil)
}

// Create godoc
// @Summary Onboard a therapist
// @Tags Therapists
// @Accept json
// @Produce json
// @Param payload body service.CreateTherapistRequest true "Therapist payload"
// @Success 201 {object} response.Envelope
// @Router /therapists [post]
func (h *TherapistHandler) Create(c *gin.Context) {
	var req service.CreateTherapistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	therapist, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, therapist)
}

// Update godoc
// @Summary Update a therapist
// @Tags Therapists
// @Accept json
// @Produce json
// @Param id path string true "Therapist ID"
// @Param payload body service.UpdateTherapistRequest true "Therapist payload"
// @Success 200 {object} response.Envelope
// @Router /therapists/{id} [put]
func (h *TherapistHandler) Update(c *gin.Context) {
	var req service.UpdateTherapistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	therapist, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, therapist, nil)
}

// Deactivate godoc
// @Summary Deactivate a therapist
// @Tags Therapists
// @Produce json
// @Param id path string true "Therapist ID"
// @Success 204
// @Router /therapists/{id} [delete]
func (h *TherapistHandler) Deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
