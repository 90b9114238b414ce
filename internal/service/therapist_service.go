package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type therapistRepository interface {
	List(ctx context.Context, filter models.TherapistFilter) ([]models.Therapist, int, error)
	FindByID(ctx context.Context, id string) (*models.Therapist, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, therapist *models.Therapist) error
	Update(ctx context.Context, therapist *models.Therapist) error
	Deactivate(ctx context.Context, id string) error
}

// CreateTherapistRequest describes payload for onboarding a therapist.
type CreateTherapistRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	FullName   string  `json:"full_name" validate:"required,min=2,max=255"`
	Phone      *string `json:"phone"`
	Speciality *string `json:"speciality"`
	LicenseNo  *string `json:"license_no"`
}

// UpdateTherapistRequest describes payload for updating a therapist.
type UpdateTherapistRequest struct {
	Email      string  `json:"email" validate:"required,email"`
	FullName   string  `json:"full_name" validate:"required,min=2,max=255"`
	Phone      *string `json:"phone"`
	Speciality *string `json:"speciality"`
	LicenseNo  *string `json:"license_no"`
	Active     *bool   `json:"active"`
}

// TherapistService handles therapist records.
type TherapistService struct {
	repo      therapistRepository
	validator *validator.Validate
}

// NewTherapistService instantiates TherapistService.
func NewTherapistService(repo therapistRepository, validate *validator.Validate) *TherapistService {
	if validate == nil {
		validate = validator.New()
	}
	return &TherapistService{repo: repo, validator: validate}
}

// List returns therapists with pagination metadata.
func (s *TherapistService) List(ctx context.Context, filter models.TherapistFilter) ([]models.Therapist, *models.Pagination, error) {
	therapists, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list therapists")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return therapists, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a therapist by id.
func (s *TherapistService) Get(ctx context.Context, id string) (*models.Therapist, error) {
	therapist, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "therapist not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load therapist")
	}
	return therapist, nil
}

// Create onboards a new therapist.
func (s *TherapistService) Create(ctx context.Context, req CreateTherapistRequest) (*models.Therapist, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid therapist payload")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check therapist email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "therapist email already registered")
	}

	therapist := models.Therapist{
		Email:      req.Email,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Speciality: req.Speciality,
		LicenseNo:  req.LicenseNo,
		Active:     true,
	}

	if err := s.repo.Create(ctx, &therapist); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create therapist")
	}
	return &therapist, nil
}

// Update amends a therapist record.
func (s *TherapistService) Update(ctx context.Context, id string, req UpdateTherapistRequest) (*models.Therapist, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid therapist payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "therapist not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load therapist")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check therapist email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "therapist email already registered")
	}

	existing.Email = req.Email
	existing.FullName = req.FullName
	existing.Phone = req.Phone
	existing.Speciality = req.Speciality
	existing.LicenseNo = req.LicenseNo
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update therapist")
	}
	return existing, nil
}

// Deactivate soft-deletes a therapist. Existing sessions are untouched.
func (s *TherapistService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "therapist not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load therapist")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate therapist")
	}
	return nil
}
