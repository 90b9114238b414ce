package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

// DefaultMinBufferMinutes is the minimum gap the conflict detector accepts
// between two consecutive sessions.
const DefaultMinBufferMinutes = 15

var clockPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

type schedulingRuleStore interface {
	ListActive(ctx context.Context) ([]models.SchedulingRule, error)
}

type schedulingSessionStore interface {
	CountActiveForTherapist(ctx context.Context, therapistID string, from, to time.Time, excludeID string) (int, error)
	DaySnapshot(ctx context.Context, therapistID string, day time.Time) ([]models.SessionSnapshot, error)
}

// ValidateSchedulingRequest is the candidate-session payload.
type ValidateSchedulingRequest struct {
	TherapistID   string `json:"therapist_id" validate:"required"`
	ServiceID     string `json:"service_id" validate:"required"`
	PatientID     string `json:"patient_id"`
	SessionID     string `json:"session_id"`
	ScheduledDate string `json:"scheduled_date" validate:"required"`
	ScheduledTime string `json:"scheduled_time" validate:"required"`
	Duration      int    `json:"duration" validate:"required,min=15,max=480"`
}

// SchedulingService evaluates candidate sessions against the configured rule
// set and audits committed schedules for conflicts. Each call is stateless;
// rule sets are never cached between requests.
type SchedulingService struct {
	rules     schedulingRuleStore
	sessions  schedulingSessionStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	minBuffer int
	now       func() time.Time
}

// NewSchedulingService instantiates the scheduling engine.
func NewSchedulingService(rules schedulingRuleStore, sessions schedulingSessionStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, minBufferMinutes int) *SchedulingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if minBufferMinutes <= 0 {
		minBufferMinutes = DefaultMinBufferMinutes
	}
	return &SchedulingService{
		rules:     rules,
		sessions:  sessions,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		minBuffer: minBufferMinutes,
		now:       time.Now,
	}
}

// ApplicableRules returns the active rules whose scope covers the candidate,
// ordered by priority descending. A storage failure degrades to an empty
// rule set rather than blocking validation: an unreachable rule store blocks
// no session but also enforces no constraints.
func (s *SchedulingService) ApplicableRules(ctx context.Context, therapistID, serviceID, patientID string) []models.SchedulingRule {
	all, err := s.rules.ListActive(ctx)
	if err != nil {
		s.logger.Error("rule retrieval failed, validating with empty rule set", zap.Error(err))
		return nil
	}

	var applicable []models.SchedulingRule
	for _, rule := range all {
		if rule.Scope.Matches(therapistID, serviceID, patientID) {
			applicable = append(applicable, rule)
		}
	}
	return applicable
}

// ValidateAgainstRule evaluates one candidate against one rule. A strategy
// failure (malformed conditions, store error, panic) is converted into a
// forced DENY violation so a broken rule can never authorize a session.
func (s *SchedulingService) ValidateAgainstRule(ctx context.Context, rule models.SchedulingRule, candidate models.CandidateSession) (result models.EvaluationResult) {
	result = models.EvaluationResult{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		RuleType:      rule.Type,
		Action:        rule.Actions.Type,
		ActionMessage: rule.Actions.Message,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rule evaluation panicked", zap.String("rule_id", rule.ID), zap.Any("panic", r))
			result.Violated = true
			result.Action = models.RuleActionDeny
			result.Message = "rule validation failed"
			result.Details = nil
		}
	}()

	violated, message, details, err := s.evaluate(ctx, rule, candidate)
	if err != nil {
		s.logger.Warn("rule evaluation failed", zap.String("rule_id", rule.ID), zap.Error(err))
		result.Violated = true
		result.Action = models.RuleActionDeny
		result.Message = "rule validation failed"
		return result
	}

	result.Violated = violated
	result.Message = message
	result.Details = details
	return result
}

func (s *SchedulingService) evaluate(ctx context.Context, rule models.SchedulingRule, candidate models.CandidateSession) (bool, string, map[string]interface{}, error) {
	switch rule.Type {
	case models.RuleTypeTimeConstraint:
		return s.evaluateTimeConstraint(rule.Conditions, candidate)
	case models.RuleTypeCapacityLimit:
		return s.evaluateCapacityLimit(ctx, rule.Conditions, candidate)
	case models.RuleTypeAdvanceBooking:
		return s.evaluateAdvanceBooking(rule.Conditions, candidate)
	case models.RuleTypeRecurringPattern:
		// Recurring-series conflict math is not implemented; these rules
		// currently enforce nothing.
		return false, "recurring pattern rules are not evaluated yet", nil, nil
	case models.RuleTypeCustom:
		// Custom logic is not implemented. Any future implementation must
		// interpret a restricted expression grammar; stored strings must
		// never reach a host-language evaluator.
		return false, "custom rules are not evaluated yet", nil, nil
	default:
		return false, "", nil, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}

// evaluateTimeConstraint checks day-of-week membership, blocked dates and
// window containment. Each configured condition is independently sufficient
// to violate; absent conditions are skipped entirely.
func (s *SchedulingService) evaluateTimeConstraint(cond models.RuleConditions, candidate models.CandidateSession) (bool, string, map[string]interface{}, error) {
	day := int(candidate.ScheduledDate.Weekday())

	if len(cond.DaysOfWeek) > 0 {
		allowed := false
		for _, d := range cond.DaysOfWeek {
			if d == day {
				allowed = true
				break
			}
		}
		if !allowed {
			return true, "sessions are not allowed on this day of week", map[string]interface{}{
				"day_of_week":  day,
				"days_allowed": cond.DaysOfWeek,
			}, nil
		}
	}

	if len(cond.SpecificDates) > 0 {
		dateKey := candidate.ScheduledDate.Format("2006-01-02")
		for _, blocked := range cond.SpecificDates {
			if blocked == dateKey {
				return true, "sessions are blocked on this date", map[string]interface{}{
					"date": dateKey,
				}, nil
			}
		}
	}

	if cond.StartTime != "" && cond.EndTime != "" {
		windowStart, err := clockMinutes(cond.StartTime)
		if err != nil {
			return false, "", nil, err
		}
		windowEnd, err := clockMinutes(cond.EndTime)
		if err != nil {
			return false, "", nil, err
		}
		sessionStart, err := clockMinutes(candidate.ScheduledTime)
		if err != nil {
			return false, "", nil, err
		}
		sessionEnd := sessionStart + candidate.Duration

		if sessionStart < windowStart || sessionEnd > windowEnd {
			return true, fmt.Sprintf("session must fall within %s-%s", cond.StartTime, cond.EndTime), map[string]interface{}{
				"window_start":  cond.StartTime,
				"window_end":    cond.EndTime,
				"session_start": candidate.ScheduledTime,
				"session_end":   minutesClock(sessionEnd),
			}, nil
		}
	}

	return false, "time constraints satisfied", nil, nil
}

// evaluateCapacityLimit is a pre-commit check: the candidate is not yet
// booked, so existing counts meeting the limit mean adding it would exceed
// the limit. Day and week thresholds are checked independently, one store
// round-trip each.
func (s *SchedulingService) evaluateCapacityLimit(ctx context.Context, cond models.RuleConditions, candidate models.CandidateSession) (bool, string, map[string]interface{}, error) {
	day := dateOnly(candidate.ScheduledDate)

	if cond.MaxSessionsPerDay != nil {
		start := time.Now()
		count, err := s.sessions.CountActiveForTherapist(ctx, candidate.TherapistID, day, day, candidate.SessionID)
		if s.metrics != nil {
			s.metrics.ObserveDBQuery("capacity_day_count", time.Since(start))
		}
		if err != nil {
			return false, "", nil, fmt.Errorf("daily capacity count: %w", err)
		}
		if count >= *cond.MaxSessionsPerDay {
			return true, fmt.Sprintf("therapist already has %d sessions that day (limit %d)", count, *cond.MaxSessionsPerDay), map[string]interface{}{
				"sessions_booked": count,
				"max_per_day":     *cond.MaxSessionsPerDay,
			}, nil
		}
	}

	if cond.MaxSessionsPerWeek != nil {
		// Sunday-aligned week containing the candidate date.
		weekStart := day.AddDate(0, 0, -int(day.Weekday()))
		weekEnd := weekStart.AddDate(0, 0, 6)
		start := time.Now()
		count, err := s.sessions.CountActiveForTherapist(ctx, candidate.TherapistID, weekStart, weekEnd, candidate.SessionID)
		if s.metrics != nil {
			s.metrics.ObserveDBQuery("capacity_week_count", time.Since(start))
		}
		if err != nil {
			return false, "", nil, fmt.Errorf("weekly capacity count: %w", err)
		}
		if count >= *cond.MaxSessionsPerWeek {
			return true, fmt.Sprintf("therapist already has %d sessions that week (limit %d)", count, *cond.MaxSessionsPerWeek), map[string]interface{}{
				"sessions_booked": count,
				"max_per_week":    *cond.MaxSessionsPerWeek,
				"week_start":      weekStart.Format("2006-01-02"),
			}, nil
		}
	}

	return false, "capacity limits satisfied", nil, nil
}

// evaluateAdvanceBooking compares the whole-day distance between today and
// the candidate date against the configured booking window.
func (s *SchedulingService) evaluateAdvanceBooking(cond models.RuleConditions, candidate models.CandidateSession) (bool, string, map[string]interface{}, error) {
	today := dateOnly(s.now())
	daysAhead := int(math.Ceil(dateOnly(candidate.ScheduledDate).Sub(today).Hours() / 24))

	if cond.MinAdvanceBooking != nil && daysAhead < *cond.MinAdvanceBooking {
		return true, fmt.Sprintf("sessions must be booked at least %d days in advance", *cond.MinAdvanceBooking), map[string]interface{}{
			"days_ahead":  daysAhead,
			"min_advance": *cond.MinAdvanceBooking,
		}, nil
	}
	if cond.MaxAdvanceBooking != nil && daysAhead > *cond.MaxAdvanceBooking {
		return true, fmt.Sprintf("sessions cannot be booked more than %d days in advance", *cond.MaxAdvanceBooking), map[string]interface{}{
			"days_ahead":  daysAhead,
			"max_advance": *cond.MaxAdvanceBooking,
		}, nil
	}

	return false, "advance booking window satisfied", nil, nil
}

// ValidateScheduling runs the candidate through every applicable rule and
// aggregates the verdict. All rules always run; there is no early exit after
// a violation, so callers see the complete picture.
func (s *SchedulingService) ValidateScheduling(ctx context.Context, req ValidateSchedulingRequest) (*models.ValidationSummary, error) {
	candidate, err := s.parseCandidate(req)
	if err != nil {
		return nil, err
	}

	rules := s.ApplicableRules(ctx, candidate.TherapistID, candidate.ServiceID, candidate.PatientID)

	summary := &models.ValidationSummary{
		Violations:        []models.EvaluationResult{},
		Warnings:          []models.EvaluationResult{},
		ValidationResults: make([]models.EvaluationResult, 0, len(rules)),
	}

	for _, rule := range rules {
		result := s.ValidateAgainstRule(ctx, rule, candidate)
		if s.metrics != nil {
			s.metrics.ObserveRuleEvaluation(rule.Type, result.Violated)
		}
		summary.ValidationResults = append(summary.ValidationResults, result)
		if !result.Violated {
			continue
		}
		switch result.Action {
		case models.RuleActionDeny:
			summary.Violations = append(summary.Violations, result)
		case models.RuleActionWarn:
			summary.Warnings = append(summary.Warnings, result)
		}
	}

	summary.Valid = len(summary.Violations) == 0
	summary.Summary = models.ValidationCounts{
		TotalRules: len(rules),
		Violations: len(summary.Violations),
		Warnings:   len(summary.Warnings),
		Passed:     len(rules) - len(summary.Violations) - len(summary.Warnings),
	}

	return summary, nil
}

// DetectConflicts audits a therapist's committed day: it walks the sessions
// in start-time order and flags overlapping and under-buffered consecutive
// pairs. Both conflicts are emitted for the same pair when both hold, since
// an overlap is also always an insufficient buffer.
func (s *SchedulingService) DetectConflicts(ctx context.Context, therapistID string, date time.Time) ([]models.ScheduleConflict, []models.SessionSnapshot, error) {
	start := time.Now()
	snapshot, err := s.sessions.DaySnapshot(ctx, therapistID, dateOnly(date))
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("day_snapshot", time.Since(start))
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load day schedule")
	}

	conflicts := []models.ScheduleConflict{}
	for i := 0; i+1 < len(snapshot); i++ {
		current, next := snapshot[i], snapshot[i+1]

		currentStart, err := clockMinutes(current.ScheduledTime)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "corrupt session time")
		}
		nextStart, err := clockMinutes(next.ScheduledTime)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "corrupt session time")
		}
		currentEnd := currentStart + current.Duration

		if currentEnd > nextStart {
			overlap := currentEnd - nextStart
			conflicts = append(conflicts, models.ScheduleConflict{
				Type:           models.ConflictTimeOverlap,
				Sessions:       [2]models.SessionSnapshot{current, next},
				OverlapMinutes: &overlap,
				Message:        fmt.Sprintf("sessions overlap by %d minutes", overlap),
			})
		}

		buffer := nextStart - currentEnd
		if buffer < s.minBuffer {
			b := buffer
			conflicts = append(conflicts, models.ScheduleConflict{
				Type:          models.ConflictInsufficientBuffer,
				Sessions:      [2]models.SessionSnapshot{current, next},
				BufferMinutes: &b,
				Message:       fmt.Sprintf("only %d minutes between sessions (minimum %d)", buffer, s.minBuffer),
			})
		}
	}

	return conflicts, snapshot, nil
}

// DetectConflictsForDate is DetectConflicts taking the date as it arrives on
// the wire.
func (s *SchedulingService) DetectConflictsForDate(ctx context.Context, therapistID, rawDate string) ([]models.ScheduleConflict, []models.SessionSnapshot, error) {
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date must be an ISO date")
	}
	return s.DetectConflicts(ctx, therapistID, date)
}

func (s *SchedulingService) parseCandidate(req ValidateSchedulingRequest) (models.CandidateSession, error) {
	return parseCandidateRequest(s.validator, req)
}

func parseCandidateRequest(v *validator.Validate, req ValidateSchedulingRequest) (models.CandidateSession, error) {
	if err := v.Struct(req); err != nil {
		return models.CandidateSession{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid candidate session payload")
	}
	if !clockPattern.MatchString(req.ScheduledTime) {
		return models.CandidateSession{}, appErrors.Clone(appErrors.ErrValidation, "scheduled_time must be HH:MM in 24h format")
	}

	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		return models.CandidateSession{}, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be an ISO date")
	}

	return models.CandidateSession{
		TherapistID:   req.TherapistID,
		ServiceID:     req.ServiceID,
		PatientID:     req.PatientID,
		SessionID:     req.SessionID,
		ScheduledDate: date,
		ScheduledTime: req.ScheduledTime,
		Duration:      req.Duration,
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func clockMinutes(clock string) (int, error) {
	if !clockPattern.MatchString(clock) {
		return 0, fmt.Errorf("invalid clock value %q", clock)
	}
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", clock, err)
	}
	return h*60 + m, nil
}

func minutesClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
