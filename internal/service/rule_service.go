package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type ruleRepository interface {
	List(ctx context.Context, filter models.RuleFilter) ([]models.SchedulingRule, int, error)
	ListAll(ctx context.Context, filter models.RuleFilter) ([]models.SchedulingRule, error)
	FindByID(ctx context.Context, id string) (*models.SchedulingRule, error)
	Create(ctx context.Context, rule *models.SchedulingRule) error
	Update(ctx context.Context, rule *models.SchedulingRule) error
	SoftDelete(ctx context.Context, id string) error
}

type candidateEvaluator interface {
	ValidateAgainstRule(ctx context.Context, rule models.SchedulingRule, candidate models.CandidateSession) models.EvaluationResult
}

// CreateRuleRequest describes payload for creating a scheduling rule.
type CreateRuleRequest struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	Type        models.RuleType       `json:"type" validate:"required"`
	Conditions  models.RuleConditions `json:"conditions"`
	Actions     models.RuleActions    `json:"actions"`
	Scope       models.RuleScope      `json:"scope"`
	Priority    *int                  `json:"priority" validate:"omitempty,min=1,max=100"`
	IsActive    *bool                 `json:"is_active"`
}

// UpdateRuleRequest updates an existing rule. The type is immutable.
type UpdateRuleRequest struct {
	Name        string                `json:"name" validate:"required"`
	Description string                `json:"description"`
	Conditions  models.RuleConditions `json:"conditions"`
	Actions     models.RuleActions    `json:"actions"`
	Scope       models.RuleScope      `json:"scope"`
	Priority    *int                  `json:"priority" validate:"omitempty,min=1,max=100"`
	IsActive    *bool                 `json:"is_active"`
}

// RuleService manages scheduling rule administration.
type RuleService struct {
	repo      ruleRepository
	evaluator candidateEvaluator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRuleService instantiates RuleService.
func NewRuleService(repo ruleRepository, evaluator candidateEvaluator, validate *validator.Validate, logger *zap.Logger) *RuleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleService{repo: repo, evaluator: evaluator, validator: validate, logger: logger}
}

// List returns rules matching the filter. Therapist/service filters match
// against the rule scope, including globally-applied rules. Scope lives in a
// serialized sub-document, so scoped listings load the full filtered set and
// paginate here after matching.
func (s *RuleService) List(ctx context.Context, filter models.RuleFilter) ([]models.SchedulingRule, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	if filter.TherapistID == "" && filter.ServiceID == "" {
		rules, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scheduling rules")
		}
		return rules, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
	}

	all, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scheduling rules")
	}

	scoped := make([]models.SchedulingRule, 0, len(all))
	for _, rule := range all {
		if rule.Scope.Matches(filter.TherapistID, filter.ServiceID, "") {
			scoped = append(scoped, rule)
		}
	}

	total := len(scoped)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return scoped[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a single rule.
func (s *RuleService) Get(ctx context.Context, id string) (*models.SchedulingRule, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduling rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling rule")
	}
	return rule, nil
}

// Create persists a new rule after validating the conditions against the
// declared type.
func (s *RuleService) Create(ctx context.Context, req CreateRuleRequest) (*models.SchedulingRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported rule type %q", req.Type))
	}
	if err := validateRulePayload(req.Type, req.Conditions, req.Actions); err != nil {
		return nil, err
	}

	rule := models.SchedulingRule{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Scope:       req.Scope,
		Priority:    50,
		IsActive:    true,
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := s.repo.Create(ctx, &rule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create scheduling rule")
	}
	return &rule, nil
}

// Update modifies an existing rule. The stored type stays fixed; conditions
// are re-validated against it.
func (s *RuleService) Update(ctx context.Context, id string, req UpdateRuleRequest) (*models.SchedulingRule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid rule payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduling rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling rule")
	}

	if err := validateRulePayload(existing.Type, req.Conditions, req.Actions); err != nil {
		return nil, err
	}

	updated := models.SchedulingRule{
		ID:          existing.ID,
		Name:        req.Name,
		Description: req.Description,
		Type:        existing.Type,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		Scope:       req.Scope,
		Priority:    existing.Priority,
		IsActive:    existing.IsActive,
		CreatedAt:   existing.CreatedAt,
	}
	if req.Priority != nil {
		updated.Priority = *req.Priority
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update scheduling rule")
	}
	return &updated, nil
}

// Delete soft-deletes a rule by flipping is_active. History is retained.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "scheduling rule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling rule")
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete scheduling rule")
	}
	return nil
}

// Test dry-runs a single rule against an arbitrary candidate. Scope and
// retrieval are bypassed; this is a tool for rule authors.
func (s *RuleService) Test(ctx context.Context, id string, req ValidateSchedulingRequest) (*models.EvaluationResult, error) {
	rule, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scheduling rule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling rule")
	}

	candidate, err := parseCandidateRequest(s.validator, req)
	if err != nil {
		return nil, err
	}

	result := s.evaluator.ValidateAgainstRule(ctx, *rule, candidate)
	return &result, nil
}

// validateRulePayload enforces the type-appropriate condition field set and
// a sane action. The switch is exhaustive over the supported rule types.
func validateRulePayload(ruleType models.RuleType, cond models.RuleConditions, actions models.RuleActions) error {
	if !actions.Type.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported action type %q", actions.Type))
	}

	switch ruleType {
	case models.RuleTypeTimeConstraint:
		if cond.MaxSessionsPerDay != nil || cond.MaxSessionsPerWeek != nil ||
			cond.MinAdvanceBooking != nil || cond.MaxAdvanceBooking != nil || cond.CustomLogic != "" {
			return appErrors.Clone(appErrors.ErrValidation, "conditions do not match TIME_CONSTRAINT")
		}
		for _, d := range cond.DaysOfWeek {
			if d < 0 || d > 6 {
				return appErrors.Clone(appErrors.ErrValidation, "daysOfWeek values must be 0 (Sunday) through 6 (Saturday)")
			}
		}
		for _, raw := range cond.SpecificDates {
			if _, err := time.Parse("2006-01-02", raw); err != nil {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("specificDates entry %q is not a date", raw))
			}
		}
		if (cond.StartTime == "") != (cond.EndTime == "") {
			return appErrors.Clone(appErrors.ErrValidation, "startTime and endTime must be set together")
		}
		if cond.StartTime != "" {
			start, err := clockMinutes(cond.StartTime)
			if err != nil {
				return appErrors.Clone(appErrors.ErrValidation, "startTime must be HH:MM in 24h format")
			}
			end, err := clockMinutes(cond.EndTime)
			if err != nil {
				return appErrors.Clone(appErrors.ErrValidation, "endTime must be HH:MM in 24h format")
			}
			if start >= end {
				return appErrors.Clone(appErrors.ErrValidation, "startTime must be before endTime")
			}
		}
	case models.RuleTypeCapacityLimit:
		if cond.MaxSessionsPerDay == nil && cond.MaxSessionsPerWeek == nil {
			return appErrors.Clone(appErrors.ErrValidation, "CAPACITY_LIMIT requires maxSessionsPerDay or maxSessionsPerWeek")
		}
		if cond.MaxSessionsPerDay != nil && *cond.MaxSessionsPerDay < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "maxSessionsPerDay must be positive")
		}
		if cond.MaxSessionsPerWeek != nil && *cond.MaxSessionsPerWeek < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "maxSessionsPerWeek must be positive")
		}
	case models.RuleTypeAdvanceBooking:
		if cond.MinAdvanceBooking == nil && cond.MaxAdvanceBooking == nil {
			return appErrors.Clone(appErrors.ErrValidation, "ADVANCE_BOOKING requires minAdvanceBooking or maxAdvanceBooking")
		}
		if cond.MinAdvanceBooking != nil && *cond.MinAdvanceBooking < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "minAdvanceBooking cannot be negative")
		}
		if cond.MaxAdvanceBooking != nil && *cond.MaxAdvanceBooking < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "maxAdvanceBooking cannot be negative")
		}
		if cond.MinAdvanceBooking != nil && cond.MaxAdvanceBooking != nil && *cond.MinAdvanceBooking > *cond.MaxAdvanceBooking {
			return appErrors.Clone(appErrors.ErrValidation, "minAdvanceBooking cannot exceed maxAdvanceBooking")
		}
	case models.RuleTypeRecurringPattern:
		if cond.Interval < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "interval cannot be negative")
		}
	case models.RuleTypeCustom:
		if cond.CustomLogic == "" {
			return appErrors.Clone(appErrors.ErrValidation, "CUSTOM requires customLogic")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported rule type %q", ruleType))
	}

	return nil
}
