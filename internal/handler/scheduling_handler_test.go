package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangpulih/clinic-api/internal/models"
	"github.com/ruangpulih/clinic-api/internal/service"
)

type fakeRuleStore struct {
	rules []models.SchedulingRule
}

func (f *fakeRuleStore) ListActive(context.Context) ([]models.SchedulingRule, error) {
	return f.rules, nil
}

type fakeSessionStore struct {
	snapshot []models.SessionSnapshot
}

func (f *fakeSessionStore) CountActiveForTherapist(context.Context, string, time.Time, time.Time, string) (int, error) {
	return 0, nil
}

func (f *fakeSessionStore) DaySnapshot(context.Context, string, time.Time) ([]models.SessionSnapshot, error) {
	return f.snapshot, nil
}

func newSchedulingHandler(rules []models.SchedulingRule, snapshot []models.SessionSnapshot) *SchedulingHandler {
	svc := service.NewSchedulingService(&fakeRuleStore{rules: rules}, &fakeSessionStore{snapshot: snapshot}, nil, nil, nil, 0)
	return NewSchedulingHandler(svc)
}

func TestSchedulingHandlerValidateRejectsBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSchedulingHandler(nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/scheduling/validate", strings.NewReader("{not json"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Validate(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulingHandlerValidateReturnsSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSchedulingHandler([]models.SchedulingRule{
		{
			ID:         "rule-1",
			Name:       "Business hours",
			Type:       models.RuleTypeTimeConstraint,
			Conditions: models.RuleConditions{StartTime: "09:00", EndTime: "17:00"},
			Actions:    models.RuleActions{Type: models.RuleActionDeny},
			Scope:      models.RuleScope{ApplyToAll: true},
			IsActive:   true,
		},
	}, nil)

	body := `{"therapist_id":"ther-1","service_id":"svc-1","scheduled_date":"2030-06-10","scheduled_time":"20:00","duration":60}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/scheduling/validate", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Validate(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.ValidationSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.False(t, envelope.Data.Valid)
	require.Len(t, envelope.Data.Violations, 1)
	assert.Equal(t, "rule-1", envelope.Data.Violations[0].RuleID)
}

func TestSchedulingHandlerConflictsRequiresParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSchedulingHandler(nil, nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/scheduling/conflicts?therapistId=ther-1", nil)

	handler.Conflicts(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchedulingHandlerConflictsReportsOverlap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newSchedulingHandler(nil, []models.SessionSnapshot{
		{ID: "sess-1", ScheduledTime: "09:00", Duration: 60, Status: models.SessionStatusScheduled},
		{ID: "sess-2", ScheduledTime: "09:30", Duration: 60, Status: models.SessionStatusConfirmed},
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/scheduling/conflicts?therapistId=ther-1&date=2026-03-09", nil)

	handler.Conflicts(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data struct {
			Conflicts []models.ScheduleConflict `json:"conflicts"`
			Sessions  []models.SessionSnapshot  `json:"sessions"`
			Summary   models.ConflictCounts     `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data.Sessions, 2)
	require.NotEmpty(t, envelope.Data.Conflicts)
	assert.Equal(t, models.ConflictTimeOverlap, envelope.Data.Conflicts[0].Type)
	assert.Equal(t, 2, envelope.Data.Summary.TotalSessions)
	assert.Equal(t, len(envelope.Data.Conflicts), envelope.Data.Summary.TotalConflicts)
	assert.Equal(t, 1, envelope.Data.Summary.Overlaps)
}
