package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ruangpulih/clinic-api/internal/models"
)

const therapistColumns = "id, email, full_name, phone, speciality, license_no, active, created_at, updated_at"

// TherapistRepository provides persistence for therapist records.
type TherapistRepository struct {
	db *sqlx.DB
}

// NewTherapistRepository creates a new therapist repository.
func NewTherapistRepository(db *sqlx.DB) *TherapistRepository {
	return &TherapistRepository{db: db}
}

// List returns therapists with optional filtering and pagination.
func (r *TherapistRepository) List(ctx context.Context, filter models.TherapistFilter) ([]models.Therapist, int, error) {
	base := "FROM therapists WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d OR speciality ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"full_name": true, "email": true, "speciality": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", therapistColumns, base, sortBy, order, size, offset)
	var therapists []models.Therapist
	if err := r.db.SelectContext(ctx, &therapists, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list therapists: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count therapists: %w", err)
	}

	return therapists, total, nil
}

// FindByID loads a therapist by id.
func (r *TherapistRepository) FindByID(ctx context.Context, id string) (*models.Therapist, error) {
	query := fmt.Sprintf("SELECT %s FROM therapists WHERE id = $1", therapistColumns)
	var therapist models.Therapist
	if err := r.db.GetContext(ctx, &therapist, query, id); err != nil {
		return nil, err
	}
	return &therapist, nil
}

// ExistsByEmail checks email uniqueness, optionally excluding one record.
func (r *TherapistRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := `SELECT 1 FROM therapists WHERE LOWER(email) = LOWER($1)`
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"

	var one int
	err := r.db.GetContext(ctx, &one, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check therapist email: %w", err)
	}
	return true, nil
}

// Create stores a new therapist record.
func (r *TherapistRepository) Create(ctx context.Context, therapist *models.Therapist) error {
	if therapist.ID == "" {
		therapist.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	therapist.CreatedAt = now
	therapist.UpdatedAt = now

	const query = `INSERT INTO therapists (id, email, full_name, phone, speciality, license_no, active, created_at, updated_at)
VALUES (:id, :email, :full_name, :phone, :speciality, :license_no, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, therapist); err != nil {
		return fmt.Errorf("create therapist: %w", err)
	}
	return nil
}

// Update modifies a therapist record.
func (r *TherapistRepository) Update(ctx context.Context, therapist *models.Therapist) error {
	therapist.UpdatedAt = time.Now().UTC()
	const query = `UPDATE therapists SET email = :email, full_name = :full_name, phone = :phone, speciality = :speciality,
license_no = :license_no, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, therapist); err != nil {
		return fmt.Errorf("update therapist: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a therapist record.
func (r *TherapistRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE therapists SET active = FALSE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate therapist: %w", err)
	}
	return nil
}
