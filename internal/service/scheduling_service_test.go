package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangpulih/clinic-api/internal/models"
)

type ruleStoreStub struct {
	rules []models.SchedulingRule
	err   error
}

func (s *ruleStoreStub) ListActive(ctx context.Context) ([]models.SchedulingRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

type sessionStoreStub struct {
	dayCount  int
	weekCount int
	countErr  error
	snapshot  []models.SessionSnapshot
	snapErr   error

	lastExclude  string
	lastWeekFrom time.Time
	lastWeekTo   time.Time
}

func (s *sessionStoreStub) CountActiveForTherapist(ctx context.Context, therapistID string, from, to time.Time, excludeID string) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.lastExclude = excludeID
	if from.Equal(to) {
		return s.dayCount, nil
	}
	s.lastWeekFrom = from
	s.lastWeekTo = to
	return s.weekCount, nil
}

func (s *sessionStoreStub) DaySnapshot(ctx context.Context, therapistID string, day time.Time) ([]models.SessionSnapshot, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snapshot, nil
}

func intPtr(v int) *int { return &v }

// fixedNow is a Monday.
var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestEngine(rules *ruleStoreStub, sessions *sessionStoreStub) *SchedulingService {
	svc := NewSchedulingService(rules, sessions, nil, nil, nil, 15)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func denyActions() models.RuleActions {
	return models.RuleActions{Type: models.RuleActionDeny, Message: "booking denied"}
}

func baseRequest() ValidateSchedulingRequest {
	return ValidateSchedulingRequest{
		TherapistID:   "ther-1",
		ServiceID:     "svc-1",
		PatientID:     "pat-1",
		ScheduledDate: "2026-03-09",
		ScheduledTime: "10:00",
		Duration:      60,
	}
}

func TestApplicableRulesScopeFiltering(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{ID: "r-all", Scope: models.RuleScope{ApplyToAll: true}},
		{ID: "r-ther", Scope: models.RuleScope{TherapistIDs: []string{"ther-1"}}},
		{ID: "r-svc", Scope: models.RuleScope{ServiceIDs: []string{"svc-9"}}},
		{ID: "r-pat", Scope: models.RuleScope{PatientIDs: []string{"pat-1"}}},
		{ID: "r-none", Scope: models.RuleScope{TherapistIDs: []string{"ther-9"}}},
	}}
	svc := newTestEngine(rules, &sessionStoreStub{})

	got := svc.ApplicableRules(context.Background(), "ther-1", "svc-1", "pat-1")

	ids := make([]string, 0, len(got))
	for _, rule := range got {
		ids = append(ids, rule.ID)
	}
	assert.Equal(t, []string{"r-all", "r-ther", "r-pat"}, ids)
}

func TestApplicableRulesEmptyPatientNeverMatchesPatientScope(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{ID: "r-pat", Scope: models.RuleScope{PatientIDs: []string{""}}},
	}}
	svc := newTestEngine(rules, &sessionStoreStub{})

	got := svc.ApplicableRules(context.Background(), "ther-1", "svc-1", "")
	assert.Empty(t, got)
}

func TestApplicableRulesStoreFailureDegradesToEmpty(t *testing.T) {
	rules := &ruleStoreStub{err: errors.New("connection refused")}
	svc := newTestEngine(rules, &sessionStoreStub{})

	got := svc.ApplicableRules(context.Background(), "ther-1", "svc-1", "pat-1")
	assert.Nil(t, got)
}

func TestTimeConstraintWindowBoundary(t *testing.T) {
	rule := models.SchedulingRule{
		ID:         "r-hours",
		Name:       "Business hours",
		Type:       models.RuleTypeTimeConstraint,
		Conditions: models.RuleConditions{StartTime: "09:00", EndTime: "17:00"},
		Actions:    denyActions(),
	}
	svc := newTestEngine(&ruleStoreStub{}, &sessionStoreStub{})

	candidate := models.CandidateSession{
		TherapistID:   "ther-1",
		ScheduledDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "16:30",
		Duration:      60,
	}
	result := svc.ValidateAgainstRule(context.Background(), rule, candidate)
	assert.True(t, result.Violated, "16:30+60 runs past 17:00")
	assert.Equal(t, "17:30", result.Details["session_end"])

	candidate.ScheduledTime = "16:00"
	result = svc.ValidateAgainstRule(context.Background(), rule, candidate)
	assert.False(t, result.Violated, "16:00+60 ends exactly at the window edge")
}

func TestTimeConstraintDayOfWeek(t *testing.T) {
	rule := models.SchedulingRule{
		ID:         "r-weekdays",
		Type:       models.RuleTypeTimeConstraint,
		Conditions: models.RuleConditions{DaysOfWeek: []int{1, 2, 3, 4, 5}},
		Actions:    denyActions(),
	}
	svc := newTestEngine(&ruleStoreStub{}, &sessionStoreStub{})

	saturday := models.CandidateSession{
		ScheduledDate: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "10:00",
		Duration:      60,
	}
	result := svc.ValidateAgainstRule(context.Background(), rule, saturday)
	assert.True(t, result.Violated)

	monday := saturday
	monday.ScheduledDate = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	result = svc.ValidateAgainstRule(context.Background(), rule, monday)
	assert.False(t, result.Violated)
}

func TestTimeConstraintBlockedDate(t *testing.T) {
	rule := models.SchedulingRule{
		ID:         "r-holiday",
		Type:       models.RuleTypeTimeConstraint,
		Conditions: models.RuleConditions{SpecificDates: []string{"2026-03-09"}},
		Actions:    denyActions(),
	}
	svc := newTestEngine(&ruleStoreStub{}, &sessionStoreStub{})

	candidate := models.CandidateSession{
		ScheduledDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "10:00",
		Duration:      60,
	}
	result := svc.ValidateAgainstRule(context.Background(), rule, candidate)
	assert.True(t, result.Violated)
}

func TestCapacityLimitDaily(t *testing.T) {
	rule := models.SchedulingRule{
		ID:         "r-cap",
		Type:       models.RuleTypeCapacityLimit,
		Conditions: models.RuleConditions{MaxSessionsPerDay: intPtr(3)},
		Actions:    denyActions(),
	}
	sessions := &sessionStoreStub{dayCount: 3}
	svc := newTestEngine(&ruleStoreStub{}, sessions)

	candidate := models.CandidateSession{
		TherapistID:   "ther-1",
		SessionID:     "sess-42",
		ScheduledDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "10:00",
		Duration:      60,
	}
	result := svc.ValidateAgainstRule(context.Background(), rule, candidate)
	assert.True(t, result.Violated, "3 booked of 3 means the 4th would exceed")
	assert.Equal(t, "sess-42", sessions.lastExclude)

	sessions.dayCount = 2
	result = svc.ValidateAgainstRule(context.Background(), rule, candidate)
	assert.False(t, result.Violated)
}

func TestCapacityLimitWeeklyUsesSundayWeek(t *testing.T) {
	rule := models.SchedulingRule{
		ID:         "r-week",
		Type:       models.RuleTypeCapacityLimit,
		Conditions: models.RuleConditions{MaxSessionsPerWeek: intPtr(10)},
		Actions:    denyActions(),
	}
	sessions := &sessionStoreStub{weekCount: 10}
	svc := newTestEngine(&ruleStoreStub{}, sessions)

	// Wednesday; its week runs Sunday 2026-03-08 through Saturday 2026-03-14.
	candidate := models.CandidateSession{
		TherapistID:   "ther-1",
		ScheduledDate: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		ScheduledTime: "10:00",
		Duration:      60,
	}
	result := svc.ValidateAgainstRule(context.Background(), rule, candidate)
	assert.True(t, result.Violated)
	assert.Equal(t, "2026-03-08", sessions.lastWeekFrom.Format("2006-01-02"))
	assert.Equal(t, "2026-03-14", sessions.lastWeekTo.Format("2006-01-02"))
}

func TestAdvanceBookingMinimum(t *testing.T) {
	rule := models.SchedulingRule{
		ID:         "r-adv",
		Type:       models.RuleTypeAdvanceBooking,
		Conditions: models.RuleConditions{MinAdvanceBooking: intPtr(2)},
		Actions:    denyActions(),
	}
	svc := newTestEngine(&ruleStoreStub{}, &sessionStoreStub{})

	tomorrow := models.CandidateSession{
		ScheduledDate: fixedNow.AddDate(0, 0, 1),
		ScheduledTime: "10:00",
		Duration:      60,
	}
	result := svc.ValidateAgainstRule(context.Background(), rule, tomorrow)
	assert.True(t, result.Violated, "1 day ahead is under the 2-day minimum")

	dayAfter := tomorrow
	dayAfter.ScheduledDate = fixedNow.AddDate(0, 0, 2)
	result = svc.ValidateAgainstRule(context.Background(), rule, dayAfter)
	assert.False(t, result.Violated, "exactly 2 days ahead satisfies the minimum")
}

func TestAdvanceBookingMaximum(t *testing.T) {
	rule := models.SchedulingRule{
		ID:         "r-max",
		Type:       models.RuleTypeAdvanceBooking,
		Conditions: models.RuleConditions{MaxAdvanceBooking: intPtr(30)},
		Actions:    denyActions(),
	}
	svc := newTestEngine(&ruleStoreStub{}, &sessionStoreStub{})

	farFuture := models.CandidateSession{
		ScheduledDate: fixedNow.AddDate(0, 0, 31),
		ScheduledTime: "10:00",
		Duration:      60,
	}
	result := svc.ValidateAgainstRule(context.Background(), rule, farFuture)
	assert.True(t, result.Violated)
}

func TestValidateSchedulingVerdictAggregation(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{
			ID:         "r-deny",
			Type:       models.RuleTypeTimeConstraint,
			Conditions: models.RuleConditions{DaysOfWeek: []int{0, 6}},
			Actions:    denyActions(),
			Scope:      models.RuleScope{ApplyToAll: true},
		},
		{
			ID:         "r-pass-1",
			Type:       models.RuleTypeTimeConstraint,
			Conditions: models.RuleConditions{StartTime: "08:00", EndTime: "20:00"},
			Actions:    denyActions(),
			Scope:      models.RuleScope{ApplyToAll: true},
		},
		{
			ID:         "r-pass-2",
			Type:       models.RuleTypeAdvanceBooking,
			Conditions: models.RuleConditions{MinAdvanceBooking: intPtr(1)},
			Actions:    denyActions(),
			Scope:      models.RuleScope{ApplyToAll: true},
		},
	}}
	svc := newTestEngine(rules, &sessionStoreStub{})

	// 2026-03-09 is a Monday, so the weekend-only rule violates.
	summary, err := svc.ValidateScheduling(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.False(t, summary.Valid)
	assert.Len(t, summary.Violations, 1)
	assert.Len(t, summary.Warnings, 0)
	assert.Len(t, summary.ValidationResults, 3)
	assert.Equal(t, 3, summary.Summary.TotalRules)
	assert.Equal(t, 1, summary.Summary.Violations)
	assert.Equal(t, 2, summary.Summary.Passed)
}

func TestValidateSchedulingWarningsDoNotBlock(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{
			ID:         "r-warn",
			Type:       models.RuleTypeAdvanceBooking,
			Conditions: models.RuleConditions{MinAdvanceBooking: intPtr(30)},
			Actions:    models.RuleActions{Type: models.RuleActionWarn, Message: "short notice"},
			Scope:      models.RuleScope{ApplyToAll: true},
		},
	}}
	svc := newTestEngine(rules, &sessionStoreStub{})

	summary, err := svc.ValidateScheduling(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.True(t, summary.Valid)
	assert.Len(t, summary.Warnings, 1)
	assert.Equal(t, 0, summary.Summary.Passed)
	assert.Equal(t, "short notice", summary.Warnings[0].ActionMessage)
}

func TestValidateSchedulingMalformedRuleForcesDeny(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{
			ID:         "r-broken",
			Type:       models.RuleTypeTimeConstraint,
			Conditions: models.RuleConditions{StartTime: "9am", EndTime: "17:00"},
			Actions:    models.RuleActions{Type: models.RuleActionWarn},
			Scope:      models.RuleScope{ApplyToAll: true},
		},
		{
			ID:         "r-ok",
			Type:       models.RuleTypeTimeConstraint,
			Conditions: models.RuleConditions{StartTime: "08:00", EndTime: "20:00"},
			Actions:    denyActions(),
			Scope:      models.RuleScope{ApplyToAll: true},
		},
	}}
	svc := newTestEngine(rules, &sessionStoreStub{})

	summary, err := svc.ValidateScheduling(context.Background(), baseRequest())
	require.NoError(t, err)

	// The broken rule is escalated to a DENY violation regardless of its
	// configured WARN action, and the healthy rule still runs.
	assert.False(t, summary.Valid)
	require.Len(t, summary.Violations, 1)
	assert.Equal(t, "r-broken", summary.Violations[0].RuleID)
	assert.Equal(t, models.RuleActionDeny, summary.Violations[0].Action)
	assert.Equal(t, "rule validation failed", summary.Violations[0].Message)
	assert.Len(t, summary.ValidationResults, 2)
}

func TestValidateSchedulingCapacityStoreErrorForcesDeny(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{
			ID:         "r-cap",
			Type:       models.RuleTypeCapacityLimit,
			Conditions: models.RuleConditions{MaxSessionsPerDay: intPtr(5)},
			Actions:    denyActions(),
			Scope:      models.RuleScope{ApplyToAll: true},
		},
	}}
	sessions := &sessionStoreStub{countErr: errors.New("timeout")}
	svc := newTestEngine(rules, sessions)

	summary, err := svc.ValidateScheduling(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.False(t, summary.Valid)
	require.Len(t, summary.Violations, 1)
	assert.Equal(t, "rule validation failed", summary.Violations[0].Message)
}

func TestValidateSchedulingStubTypesEnforceNothing(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{
			ID:      "r-recurring",
			Type:    models.RuleTypeRecurringPattern,
			Actions: denyActions(),
			Scope:   models.RuleScope{ApplyToAll: true},
		},
		{
			ID:      "r-custom",
			Type:    models.RuleTypeCustom,
			Actions: denyActions(),
			Scope:   models.RuleScope{ApplyToAll: true},
		},
	}}
	svc := newTestEngine(rules, &sessionStoreStub{})

	summary, err := svc.ValidateScheduling(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.True(t, summary.Valid)
	assert.Equal(t, 2, summary.Summary.Passed)
}

func TestValidateSchedulingIsIdempotent(t *testing.T) {
	rules := &ruleStoreStub{rules: []models.SchedulingRule{
		{
			ID:         "r-hours",
			Type:       models.RuleTypeTimeConstraint,
			Conditions: models.RuleConditions{StartTime: "09:00", EndTime: "17:00"},
			Actions:    denyActions(),
			Scope:      models.RuleScope{ApplyToAll: true},
		},
	}}
	svc := newTestEngine(rules, &sessionStoreStub{})

	first, err := svc.ValidateScheduling(context.Background(), baseRequest())
	require.NoError(t, err)
	second, err := svc.ValidateScheduling(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestValidateSchedulingRejectsBadPayload(t *testing.T) {
	svc := newTestEngine(&ruleStoreStub{}, &sessionStoreStub{})

	req := baseRequest()
	req.ScheduledTime = "25:99"
	_, err := svc.ValidateScheduling(context.Background(), req)
	require.Error(t, err)

	req = baseRequest()
	req.Duration = 10
	_, err = svc.ValidateScheduling(context.Background(), req)
	require.Error(t, err)

	req = baseRequest()
	req.ScheduledDate = "next tuesday"
	_, err = svc.ValidateScheduling(context.Background(), req)
	require.Error(t, err)
}

func TestDetectConflictsOverlapAlsoReportsBuffer(t *testing.T) {
	sessions := &sessionStoreStub{snapshot: []models.SessionSnapshot{
		{ID: "a", ScheduledTime: "09:00", Duration: 60, Status: models.SessionStatusScheduled},
		{ID: "b", ScheduledTime: "09:45", Duration: 30, Status: models.SessionStatusScheduled},
	}}
	svc := newTestEngine(&ruleStoreStub{}, sessions)

	conflicts, snapshot, err := svc.DetectConflicts(context.Background(), "ther-1", fixedNow)
	require.NoError(t, err)
	assert.Len(t, snapshot, 2)
	require.Len(t, conflicts, 2)

	assert.Equal(t, models.ConflictTimeOverlap, conflicts[0].Type)
	require.NotNil(t, conflicts[0].OverlapMinutes)
	assert.Equal(t, 15, *conflicts[0].OverlapMinutes)

	assert.Equal(t, models.ConflictInsufficientBuffer, conflicts[1].Type)
	require.NotNil(t, conflicts[1].BufferMinutes)
	assert.Equal(t, -15, *conflicts[1].BufferMinutes)
}

func TestDetectConflictsThinBuffer(t *testing.T) {
	sessions := &sessionStoreStub{snapshot: []models.SessionSnapshot{
		{ID: "a", ScheduledTime: "10:00", Duration: 60},
		{ID: "b", ScheduledTime: "11:10", Duration: 60},
	}}
	svc := newTestEngine(&ruleStoreStub{}, sessions)

	conflicts, _, err := svc.DetectConflicts(context.Background(), "ther-1", fixedNow)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictInsufficientBuffer, conflicts[0].Type)
	assert.Equal(t, 10, *conflicts[0].BufferMinutes)
}

func TestDetectConflictsCleanDay(t *testing.T) {
	sessions := &sessionStoreStub{snapshot: []models.SessionSnapshot{
		{ID: "a", ScheduledTime: "09:00", Duration: 60},
		{ID: "b", ScheduledTime: "10:30", Duration: 60},
		{ID: "c", ScheduledTime: "13:00", Duration: 90},
	}}
	svc := newTestEngine(&ruleStoreStub{}, sessions)

	conflicts, snapshot, err := svc.DetectConflicts(context.Background(), "ther-1", fixedNow)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Len(t, snapshot, 3)
}

func TestClockMinutes(t *testing.T) {
	got, err := clockMinutes("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, got)

	got, err = clockMinutes("23:59")
	require.NoError(t, err)
	assert.Equal(t, 1439, got)

	_, err = clockMinutes("24:00")
	require.Error(t, err)
	_, err = clockMinutes("9am")
	require.Error(t, err)
}
