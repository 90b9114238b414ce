package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ruangpulih/clinic-api/internal/models"
	"github.com/ruangpulih/clinic-api/internal/service"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
	"github.com/ruangpulih/clinic-api/pkg/response"
)

// SchedulingHandler exposes the rule validation engine endpoints.
type SchedulingHandler struct {
	service *service.SchedulingService
}

// NewSchedulingHandler constructs handler.
func NewSchedulingHandler(svc *service.SchedulingService) *SchedulingHandler {
	return &SchedulingHandler{service: svc}
}

// Validate godoc
// @Summary Validate a scheduling request against active rules
// @Tags Scheduling
// @Accept json
// @Produce json
// @Param payload body service.ValidateSchedulingRequest true "Candidate session"
// @Success 200 {object} response.Envelope
// @Router /scheduling/validate [post]
func (h *SchedulingHandler) Validate(c *gin.Context) {
	var req service.ValidateSchedulingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	summary, err := h.service.ValidateScheduling(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Conflicts godoc
// @Summary Detect conflicts in a therapist's day
// @Tags Scheduling
// @Produce json
// @Param therapistId query string true "Therapist ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /scheduling/conflicts [get]
func (h *SchedulingHandler) Conflicts(c *gin.Context) {
	therapistID := c.Query("therapistId")
	rawDate := c.Query("date")
	if therapistID == "" || rawDate == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "therapistId and date are required"))
		return
	}

	conflicts, sessions, err := h.service.DetectConflictsForDate(c.Request.Context(), therapistID, rawDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{
		"therapist_id": therapistID,
		"date":         rawDate,
		"sessions":     sessions,
		"conflicts":    conflicts,
		"summary":      models.SummarizeConflicts(sessions, conflicts),
	}, nil)
}
