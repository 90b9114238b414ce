package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruangpulih/clinic-api/internal/service"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
	"github.com/ruangpulih/clinic-api/pkg/response"
)

// DashboardHandler serves composed day views.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// TherapistDay godoc
// @Summary Therapist day summary
// @Tags Dashboard
// @Produce json
// @Param id path string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/therapists/{id} [get]
func (h *DashboardHandler) TherapistDay(c *gin.Context) {
	rawDate := c.Query("date")
	if rawDate == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date is required"))
		return
	}

	summary, cached, err := h.service.TherapistDay(c.Request.Context(), c.Param("id"), rawDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cached": cached})
}
