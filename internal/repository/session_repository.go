package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ruangpulih/clinic-api/internal/models"
)

const sessionColumns = "id, patient_id, therapist_id, service_id, scheduled_date, scheduled_time, duration, status, notes, created_at, updated_at"

// SessionRepository provides persistence for therapy sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions with optional filtering and pagination.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.TherapySession, int, error) {
	base := "FROM sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TherapistID != "" {
		conditions = append(conditions, fmt.Sprintf("therapist_id = $%d", len(args)+1))
		args = append(args, filter.TherapistID)
	}
	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.ServiceID != "" {
		conditions = append(conditions, fmt.Sprintf("service_id = $%d", len(args)+1))
		args = append(args, filter.ServiceID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"scheduled_date": true,
		"scheduled_time": true,
		"status":         true,
		"created_at":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "scheduled_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, scheduled_time ASC LIMIT %d OFFSET %d", sessionColumns, base, sortBy, order, size, offset)
	var sessions []models.TherapySession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.TherapySession, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1", sessionColumns)
	var session models.TherapySession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// CountActiveForTherapist counts calendar-occupying sessions for a therapist
// between two dates inclusive. excludeID removes the session being
// re-validated from the count so an update does not count against itself.
func (r *SessionRepository) CountActiveForTherapist(ctx context.Context, therapistID string, from, to time.Time, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM sessions
WHERE therapist_id = $1 AND scheduled_date >= $2 AND scheduled_date <= $3 AND status = ANY($4)`
	args := []interface{}{therapistID, from, to, pq.Array(activeStatusStrings())}
	if excludeID != "" {
		query += " AND id <> $5"
		args = append(args, excludeID)
	}

	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

// DaySnapshot returns the calendar-occupying sessions for a therapist on one
// day, sorted ascending by start time, with patient/service display names.
func (r *SessionRepository) DaySnapshot(ctx context.Context, therapistID string, day time.Time) ([]models.SessionSnapshot, error) {
	const query = `SELECT s.id, s.scheduled_time, s.duration, s.status, p.full_name AS patient_name, svc.name AS service_name
FROM sessions s
JOIN patients p ON p.id = s.patient_id
JOIN services svc ON svc.id = s.service_id
WHERE s.therapist_id = $1 AND s.scheduled_date = $2 AND s.status = ANY($3)
ORDER BY s.scheduled_time ASC`
	var snapshots []models.SessionSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, therapistID, day, pq.Array(activeStatusStrings())); err != nil {
		return nil, fmt.Errorf("day snapshot: %w", err)
	}
	return snapshots, nil
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.TherapySession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO sessions (id, patient_id, therapist_id, service_id, scheduled_date, scheduled_time, duration, status, notes, created_at, updated_at)
VALUES (:id, :patient_id, :therapist_id, :service_id, :scheduled_date, :scheduled_time, :duration, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update modifies a session record.
func (r *SessionRepository) Update(ctx context.Context, session *models.TherapySession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET patient_id = :patient_id, therapist_id = :therapist_id, service_id = :service_id,
scheduled_date = :scheduled_date, scheduled_time = :scheduled_time, duration = :duration, status = :status, notes = :notes,
updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Cancel marks a session cancelled. Bookings keep their history.
func (r *SessionRepository) Cancel(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1`,
		id, models.SessionStatusCancelled, time.Now().UTC()); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return nil
}

func activeStatusStrings() []string {
	out := make([]string, len(models.ActiveSessionStatuses))
	for i, s := range models.ActiveSessionStatuses {
		out[i] = string(s)
	}
	return out
}
