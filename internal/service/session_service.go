package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.TherapySession, int, error)
	FindByID(ctx context.Context, id string) (*models.TherapySession, error)
	Create(ctx context.Context, session *models.TherapySession) error
	Update(ctx context.Context, session *models.TherapySession) error
	Cancel(ctx context.Context, id string) error
}

type schedulingValidator interface {
	ValidateScheduling(ctx context.Context, req ValidateSchedulingRequest) (*models.ValidationSummary, error)
}

type dashboardInvalidator interface {
	InvalidateTherapistDay(ctx context.Context, therapistID string, date time.Time)
}

// RuleViolationError carries the full validation summary when a booking is
// rejected by the scheduling rules.
type RuleViolationError struct {
	Summary *models.ValidationSummary `json:"summary"`
}

// Error implements the error interface.
func (e *RuleViolationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "scheduling rules violated"
}

// CreateSessionRequest describes payload for booking a session.
type CreateSessionRequest struct {
	PatientID     string  `json:"patient_id" validate:"required"`
	TherapistID   string  `json:"therapist_id" validate:"required"`
	ServiceID     string  `json:"service_id" validate:"required"`
	ScheduledDate string  `json:"scheduled_date" validate:"required"`
	ScheduledTime string  `json:"scheduled_time" validate:"required"`
	Duration      int     `json:"duration" validate:"required,min=15,max=480"`
	Notes         *string `json:"notes"`
}

// UpdateSessionRequest reschedules or amends an existing session.
type UpdateSessionRequest struct {
	PatientID     string               `json:"patient_id" validate:"required"`
	TherapistID   string               `json:"therapist_id" validate:"required"`
	ServiceID     string               `json:"service_id" validate:"required"`
	ScheduledDate string               `json:"scheduled_date" validate:"required"`
	ScheduledTime string               `json:"scheduled_time" validate:"required"`
	Duration      int                  `json:"duration" validate:"required,min=15,max=480"`
	Status        models.SessionStatus `json:"status" validate:"required"`
	Notes         *string              `json:"notes"`
}

// SessionService coordinates session booking. Every create/update passes
// through the scheduling rule engine before it reaches the store.
type SessionService struct {
	repo       sessionRepository
	scheduling schedulingValidator
	dashboards dashboardInvalidator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSessionService instantiates SessionService.
func NewSessionService(repo sessionRepository, scheduling schedulingValidator, dashboards dashboardInvalidator, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, scheduling: scheduling, dashboards: dashboards, validator: validate, logger: logger}
}

// invalidateDashboard drops the cached day summary touched by a booking change.
func (s *SessionService) invalidateDashboard(ctx context.Context, therapistID string, date time.Time) {
	if s.dashboards == nil {
		return
	}
	s.dashboards.InvalidateTherapistDay(ctx, therapistID, date)
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.TherapySession, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.TherapySession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Create books a session after the rule engine admits it. The returned
// summary carries any warnings even when the booking succeeds.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.TherapySession, *models.ValidationSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	summary, err := s.scheduling.ValidateScheduling(ctx, ValidateSchedulingRequest{
		TherapistID:   req.TherapistID,
		ServiceID:     req.ServiceID,
		PatientID:     req.PatientID,
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
		Duration:      req.Duration,
	})
	if err != nil {
		return nil, nil, err
	}
	if !summary.Valid {
		return nil, summary, appErrors.Wrap(&RuleViolationError{Summary: summary},
			appErrors.ErrRuleViolation.Code, appErrors.ErrRuleViolation.Status, "session violates scheduling rules")
	}

	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be an ISO date")
	}

	session := models.TherapySession{
		PatientID:     req.PatientID,
		TherapistID:   req.TherapistID,
		ServiceID:     req.ServiceID,
		ScheduledDate: dateOnly(date),
		ScheduledTime: req.ScheduledTime,
		Duration:      req.Duration,
		Status:        models.SessionStatusScheduled,
		Notes:         req.Notes,
	}

	if err := s.repo.Create(ctx, &session); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.invalidateDashboard(ctx, session.TherapistID, session.ScheduledDate)
	return &session, summary, nil
}

// Update amends a booking, revalidating against the rules with the session
// itself excluded from capacity counts.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.TherapySession, *models.ValidationSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !validSessionStatus(req.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unsupported session status")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	summary, err := s.scheduling.ValidateScheduling(ctx, ValidateSchedulingRequest{
		TherapistID:   req.TherapistID,
		ServiceID:     req.ServiceID,
		PatientID:     req.PatientID,
		SessionID:     existing.ID,
		ScheduledDate: req.ScheduledDate,
		ScheduledTime: req.ScheduledTime,
		Duration:      req.Duration,
	})
	if err != nil {
		return nil, nil, err
	}
	if !summary.Valid {
		return nil, summary, appErrors.Wrap(&RuleViolationError{Summary: summary},
			appErrors.ErrRuleViolation.Code, appErrors.ErrRuleViolation.Status, "session violates scheduling rules")
	}

	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "scheduled_date must be an ISO date")
	}

	updated := models.TherapySession{
		ID:            existing.ID,
		PatientID:     req.PatientID,
		TherapistID:   req.TherapistID,
		ServiceID:     req.ServiceID,
		ScheduledDate: dateOnly(date),
		ScheduledTime: req.ScheduledTime,
		Duration:      req.Duration,
		Status:        req.Status,
		Notes:         req.Notes,
		CreatedAt:     existing.CreatedAt,
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	s.invalidateDashboard(ctx, existing.TherapistID, existing.ScheduledDate)
	if updated.TherapistID != existing.TherapistID || !updated.ScheduledDate.Equal(existing.ScheduledDate) {
		s.invalidateDashboard(ctx, updated.TherapistID, updated.ScheduledDate)
	}
	return &updated, summary, nil
}

// Cancel marks a session cancelled; the record is retained.
func (s *SessionService) Cancel(ctx context.Context, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if err := s.repo.Cancel(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	s.invalidateDashboard(ctx, existing.TherapistID, existing.ScheduledDate)
	return nil
}

func validSessionStatus(status models.SessionStatus) bool {
	switch status {
	case models.SessionStatusScheduled, models.SessionStatusConfirmed, models.SessionStatusInProgress,
		models.SessionStatusCompleted, models.SessionStatusCancelled, models.SessionStatusNoShow:
		return true
	}
	return false
}
