package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ruangpulih/clinic-api/internal/models"
)

const serviceColumns = "id, name, description, duration, price, active, created_at, updated_at"

// CatalogRepository persists the therapy service catalog.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// List returns catalog services with optional filtering and pagination.
func (r *CatalogRepository) List(ctx context.Context, filter models.TherapyServiceFilter) ([]models.TherapyService, int, error) {
	base := "FROM services WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY name ASC LIMIT %d OFFSET %d", serviceColumns, base, size, offset)
	var services []models.TherapyService
	if err := r.db.SelectContext(ctx, &services, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list services: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count services: %w", err)
	}

	return services, total, nil
}

// FindByID loads a catalog service by id.
func (r *CatalogRepository) FindByID(ctx context.Context, id string) (*models.TherapyService, error) {
	query := fmt.Sprintf("SELECT %s FROM services WHERE id = $1", serviceColumns)
	var service models.TherapyService
	if err := r.db.GetContext(ctx, &service, query, id); err != nil {
		return nil, err
	}
	return &service, nil
}

// Create stores a new catalog service.
func (r *CatalogRepository) Create(ctx context.Context, service *models.TherapyService) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	service.CreatedAt = now
	service.UpdatedAt = now

	const query = `INSERT INTO services (id, name, description, duration, price, active, created_at, updated_at)
VALUES (:id, :name, :description, :duration, :price, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// Update modifies a catalog service.
func (r *CatalogRepository) Update(ctx context.Context, service *models.TherapyService) error {
	service.UpdatedAt = time.Now().UTC()
	const query = `UPDATE services SET name = :name, description = :description, duration = :duration, price = :price,
active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, service); err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a catalog service.
func (r *CatalogRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE services SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate service: %w", err)
	}
	return nil
}
