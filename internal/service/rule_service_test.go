package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type ruleRepoStub struct {
	rules   map[string]models.SchedulingRule
	listed  []models.SchedulingRule
	err     error
	deleted []string
}

func (s *ruleRepoStub) List(ctx context.Context, filter models.RuleFilter) ([]models.SchedulingRule, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.listed, len(s.listed), nil
}

func (s *ruleRepoStub) ListAll(ctx context.Context, filter models.RuleFilter) ([]models.SchedulingRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.listed, nil
}

func (s *ruleRepoStub) FindByID(ctx context.Context, id string) (*models.SchedulingRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	if rule, ok := s.rules[id]; ok {
		return &rule, nil
	}
	return nil, sql.ErrNoRows
}

func (s *ruleRepoStub) Create(ctx context.Context, rule *models.SchedulingRule) error {
	if s.err != nil {
		return s.err
	}
	rule.ID = "rule-new"
	if s.rules == nil {
		s.rules = make(map[string]models.SchedulingRule)
	}
	s.rules[rule.ID] = *rule
	return nil
}

func (s *ruleRepoStub) Update(ctx context.Context, rule *models.SchedulingRule) error {
	if s.err != nil {
		return s.err
	}
	s.rules[rule.ID] = *rule
	return nil
}

func (s *ruleRepoStub) SoftDelete(ctx context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type evaluatorStub struct {
	result models.EvaluationResult
}

func (e *evaluatorStub) ValidateAgainstRule(ctx context.Context, rule models.SchedulingRule, candidate models.CandidateSession) models.EvaluationResult {
	out := e.result
	out.RuleID = rule.ID
	return out
}

func newRuleService(repo *ruleRepoStub, eval *evaluatorStub) *RuleService {
	if eval == nil {
		eval = &evaluatorStub{}
	}
	return NewRuleService(repo, eval, nil, nil)
}

func TestRuleServiceCreateDefaults(t *testing.T) {
	repo := &ruleRepoStub{}
	svc := newRuleService(repo, nil)

	rule, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:       "Business hours",
		Type:       models.RuleTypeTimeConstraint,
		Conditions: models.RuleConditions{StartTime: "09:00", EndTime: "17:00"},
		Actions:    models.RuleActions{Type: models.RuleActionDeny},
		Scope:      models.RuleScope{ApplyToAll: true},
	})
	require.NoError(t, err)

	assert.Equal(t, 50, rule.Priority)
	assert.True(t, rule.IsActive)
	assert.Equal(t, "rule-new", rule.ID)
}

func TestRuleServiceCreateRejectsMismatchedConditions(t *testing.T) {
	svc := newRuleService(&ruleRepoStub{}, nil)

	_, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:       "Mixed up",
		Type:       models.RuleTypeTimeConstraint,
		Conditions: models.RuleConditions{MaxSessionsPerDay: intPtr(3)},
		Actions:    models.RuleActions{Type: models.RuleActionDeny},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRuleServiceCreateRejectsInvalidWindow(t *testing.T) {
	svc := newRuleService(&ruleRepoStub{}, nil)

	cases := []models.RuleConditions{
		{StartTime: "17:00", EndTime: "09:00"},
		{StartTime: "09:00"},
		{DaysOfWeek: []int{7}},
		{SpecificDates: []string{"March 9"}},
	}
	for _, cond := range cases {
		_, err := svc.Create(context.Background(), CreateRuleRequest{
			Name:       "Bad window",
			Type:       models.RuleTypeTimeConstraint,
			Conditions: cond,
			Actions:    models.RuleActions{Type: models.RuleActionDeny},
		})
		require.Error(t, err, "conditions %+v should be rejected", cond)
	}
}

func TestRuleServiceCreateCapacityRequiresALimit(t *testing.T) {
	svc := newRuleService(&ruleRepoStub{}, nil)

	_, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:    "Empty capacity",
		Type:    models.RuleTypeCapacityLimit,
		Actions: models.RuleActions{Type: models.RuleActionDeny},
	})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), CreateRuleRequest{
		Name:       "Valid capacity",
		Type:       models.RuleTypeCapacityLimit,
		Conditions: models.RuleConditions{MaxSessionsPerWeek: intPtr(20)},
		Actions:    models.RuleActions{Type: models.RuleActionWarn},
	})
	require.NoError(t, err)
}

func TestRuleServiceCreateAdvanceBookingOrdering(t *testing.T) {
	svc := newRuleService(&ruleRepoStub{}, nil)

	_, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:       "Inverted",
		Type:       models.RuleTypeAdvanceBooking,
		Conditions: models.RuleConditions{MinAdvanceBooking: intPtr(10), MaxAdvanceBooking: intPtr(5)},
		Actions:    models.RuleActions{Type: models.RuleActionDeny},
	})
	require.Error(t, err)
}

func TestRuleServiceCreateRejectsUnknownActionType(t *testing.T) {
	svc := newRuleService(&ruleRepoStub{}, nil)

	_, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:       "No action",
		Type:       models.RuleTypeTimeConstraint,
		Conditions: models.RuleConditions{DaysOfWeek: []int{1}},
		Actions:    models.RuleActions{Type: "EXPLODE"},
	})
	require.Error(t, err)
}

func TestRuleServiceUpdateKeepsTypeImmutable(t *testing.T) {
	repo := &ruleRepoStub{rules: map[string]models.SchedulingRule{
		"rule-1": {
			ID:         "rule-1",
			Name:       "Capacity",
			Type:       models.RuleTypeCapacityLimit,
			Conditions: models.RuleConditions{MaxSessionsPerDay: intPtr(5)},
			Actions:    models.RuleActions{Type: models.RuleActionDeny},
			Priority:   70,
			IsActive:   true,
		},
	}}
	svc := newRuleService(repo, nil)

	updated, err := svc.Update(context.Background(), "rule-1", UpdateRuleRequest{
		Name:       "Capacity tightened",
		Conditions: models.RuleConditions{MaxSessionsPerDay: intPtr(4)},
		Actions:    models.RuleActions{Type: models.RuleActionDeny},
	})
	require.NoError(t, err)

	assert.Equal(t, models.RuleTypeCapacityLimit, updated.Type)
	assert.Equal(t, 70, updated.Priority, "priority survives when not supplied")
	assert.Equal(t, 4, *updated.Conditions.MaxSessionsPerDay)
}

func TestRuleServiceUpdateRevalidatesAgainstStoredType(t *testing.T) {
	repo := &ruleRepoStub{rules: map[string]models.SchedulingRule{
		"rule-1": {
			ID:       "rule-1",
			Type:     models.RuleTypeCapacityLimit,
			Actions:  models.RuleActions{Type: models.RuleActionDeny},
			IsActive: true,
		},
	}}
	svc := newRuleService(repo, nil)

	// Time-constraint conditions against a stored CAPACITY_LIMIT rule.
	_, err := svc.Update(context.Background(), "rule-1", UpdateRuleRequest{
		Name:       "Wrong payload",
		Conditions: models.RuleConditions{StartTime: "09:00", EndTime: "17:00"},
		Actions:    models.RuleActions{Type: models.RuleActionDeny},
	})
	require.Error(t, err)
}

func TestRuleServiceDeleteIsSoft(t *testing.T) {
	repo := &ruleRepoStub{rules: map[string]models.SchedulingRule{
		"rule-1": {ID: "rule-1", Type: models.RuleTypeCustom, IsActive: true},
	}}
	svc := newRuleService(repo, nil)

	require.NoError(t, svc.Delete(context.Background(), "rule-1"))
	assert.Equal(t, []string{"rule-1"}, repo.deleted)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRuleServiceListFiltersByScope(t *testing.T) {
	repo := &ruleRepoStub{listed: []models.SchedulingRule{
		{ID: "r-all", Scope: models.RuleScope{ApplyToAll: true}},
		{ID: "r-ther", Scope: models.RuleScope{TherapistIDs: []string{"ther-1"}}},
		{ID: "r-other", Scope: models.RuleScope{TherapistIDs: []string{"ther-2"}}},
	}}
	svc := newRuleService(repo, nil)

	rules, pagination, err := svc.List(context.Background(), models.RuleFilter{TherapistID: "ther-1"})
	require.NoError(t, err)

	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}
	assert.Equal(t, []string{"r-all", "r-ther"}, ids)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestRuleServiceListScopedPagination(t *testing.T) {
	repo := &ruleRepoStub{listed: []models.SchedulingRule{
		{ID: "r-1", Scope: models.RuleScope{ApplyToAll: true}},
		{ID: "r-2", Scope: models.RuleScope{TherapistIDs: []string{"ther-2"}}},
		{ID: "r-3", Scope: models.RuleScope{TherapistIDs: []string{"ther-1"}}},
		{ID: "r-4", Scope: models.RuleScope{ApplyToAll: true}},
	}}
	svc := newRuleService(repo, nil)

	rules, pagination, err := svc.List(context.Background(), models.RuleFilter{
		TherapistID: "ther-1",
		Page:        2,
		PageSize:    2,
	})
	require.NoError(t, err)

	// 3 rules match the scope; the second page holds only the last one and
	// the total reflects the full match count.
	require.Len(t, rules, 1)
	assert.Equal(t, "r-4", rules[0].ID)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, 2, pagination.Page)

	rules, pagination, err = svc.List(context.Background(), models.RuleFilter{
		TherapistID: "ther-1",
		Page:        5,
		PageSize:    2,
	})
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Equal(t, 3, pagination.TotalCount)
}

func TestRuleServiceTestBypassesScope(t *testing.T) {
	repo := &ruleRepoStub{rules: map[string]models.SchedulingRule{
		"rule-1": {
			ID:    "rule-1",
			Type:  models.RuleTypeTimeConstraint,
			Scope: models.RuleScope{TherapistIDs: []string{"someone-else"}},
		},
	}}
	eval := &evaluatorStub{result: models.EvaluationResult{Violated: true, Message: "out of hours"}}
	svc := newRuleService(repo, eval)

	result, err := svc.Test(context.Background(), "rule-1", baseRequest())
	require.NoError(t, err)

	assert.True(t, result.Violated)
	assert.Equal(t, "rule-1", result.RuleID)
}

func TestRuleServiceTestRejectsBadCandidate(t *testing.T) {
	repo := &ruleRepoStub{rules: map[string]models.SchedulingRule{
		"rule-1": {ID: "rule-1", Type: models.RuleTypeCustom},
	}}
	svc := newRuleService(repo, nil)

	req := baseRequest()
	req.ScheduledTime = "noon"
	_, err := svc.Test(context.Background(), "rule-1", req)
	require.Error(t, err)
}
