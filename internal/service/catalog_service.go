package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
)

type catalogRepository interface {
	List(ctx context.Context, filter models.TherapyServiceFilter) ([]models.TherapyService, int, error)
	FindByID(ctx context.Context, id string) (*models.TherapyService, error)
	Create(ctx context.Context, service *models.TherapyService) error
	Update(ctx context.Context, service *models.TherapyService) error
	Deactivate(ctx context.Context, id string) error
}

// CatalogServiceRequest describes payload for a catalog entry. Duration is
// the default session length in minutes and bounds follow session limits.
type CatalogServiceRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=255"`
	Description *string `json:"description"`
	Duration    int     `json:"duration" validate:"required,min=15,max=480"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Active      *bool   `json:"active"`
}

// CatalogService manages the clinic's therapy service catalog.
type CatalogService struct {
	repo      catalogRepository
	validator *validator.Validate
}

// NewCatalogService instantiates CatalogService.
func NewCatalogService(repo catalogRepository, validate *validator.Validate) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	return &CatalogService{repo: repo, validator: validate}
}

// List returns catalog entries with pagination metadata.
func (s *CatalogService) List(ctx context.Context, filter models.TherapyServiceFilter) ([]models.TherapyService, *models.Pagination, error) {
	services, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list services")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return services, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a catalog entry by id.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.TherapyService, error) {
	service, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}
	return service, nil
}

// Create adds a catalog entry.
func (s *CatalogService) Create(ctx context.Context, req CatalogServiceRequest) (*models.TherapyService, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid service payload")
	}

	service := models.TherapyService{
		Name:        req.Name,
		Description: req.Description,
		Duration:    req.Duration,
		Price:       req.Price,
		Active:      true,
	}
	if req.Active != nil {
		service.Active = *req.Active
	}

	if err := s.repo.Create(ctx, &service); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create service")
	}
	return &service, nil
}

// Update amends a catalog entry.
func (s *CatalogService) Update(ctx context.Context, id string, req CatalogServiceRequest) (*models.TherapyService, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid service payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.Duration = req.Duration
	existing.Price = req.Price
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update service")
	}
	return existing, nil
}

// Deactivate retires a catalog entry without touching past sessions.
func (s *CatalogService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "service not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate service")
	}
	return nil
}
