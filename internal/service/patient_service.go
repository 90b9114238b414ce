package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type patientRepository interface {
	List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, int, error)
	FindByID(ctx context.Context, id string) (*models.Patient, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, patient *models.Patient) error
	Update(ctx context.Context, patient *models.Patient) error
	Deactivate(ctx context.Context, id string) error
}

// CreatePatientRequest describes payload for registering a patient.
type CreatePatientRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	FullName  string  `json:"full_name" validate:"required,min=2,max=255"`
	Phone     *string `json:"phone"`
	BirthDate *string `json:"birth_date"`
	Notes     *string `json:"notes"`
}

// UpdatePatientRequest describes payload for updating a patient.
type UpdatePatientRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	FullName  string  `json:"full_name" validate:"required,min=2,max=255"`
	Phone     *string `json:"phone"`
	BirthDate *string `json:"birth_date"`
	Notes     *string `json:"notes"`
	Active    *bool   `json:"active"`
}

// PatientService handles patient records.
type PatientService struct {
	repo      patientRepository
	validator *validator.Validate
}

// NewPatientService instantiates PatientService.
func NewPatientService(repo patientRepository, validate *validator.Validate) *PatientService {
	if validate == nil {
		validate = validator.New()
	}
	return &PatientService{repo: repo, validator: validate}
}

// List returns patients with pagination metadata.
func (s *PatientService) List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, *models.Pagination, error) {
	patients, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list patients")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return patients, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a patient by id.
func (s *PatientService) Get(ctx context.Context, id string) (*models.Patient, error) {
	patient, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	return patient, nil
}

// Create registers a new patient. Email must be unique among patients.
func (s *PatientService) Create(ctx context.Context, req CreatePatientRequest) (*models.Patient, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check patient email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "patient email already registered")
	}

	birthDate, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must be an ISO date")
	}

	patient := models.Patient{
		Email:     req.Email,
		FullName:  req.FullName,
		Phone:     req.Phone,
		BirthDate: birthDate,
		Notes:     req.Notes,
		Active:    true,
	}

	if err := s.repo.Create(ctx, &patient); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create patient")
	}
	return &patient, nil
}

// Update amends a patient record.
func (s *PatientService) Update(ctx context.Context, id string, req UpdatePatientRequest) (*models.Patient, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check patient email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "patient email already registered")
	}

	birthDate, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must be an ISO date")
	}

	existing.Email = req.Email
	existing.FullName = req.FullName
	existing.Phone = req.Phone
	existing.BirthDate = birthDate
	existing.Notes = req.Notes
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update patient")
	}
	return existing, nil
}

// Deactivate soft-deletes a patient.
func (s *PatientService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate patient")
	}
	return nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := parseDate(*raw)
	if err != nil {
		return nil, err
	}
	d := dateOnly(t)
	return &d, nil
}
