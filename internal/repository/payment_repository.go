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

const paymentColumns = "id, session_id, receipt_number, amount, method, status, paid_at, created_at, updated_at"

// PaymentRepository provides persistence for payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// List returns payments with optional filtering and pagination.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := "FROM payments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", paymentColumns, base, size, offset)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	return payments, total, nil
}

// FindDetail loads a payment joined with receipt display fields.
func (r *PaymentRepository) FindDetail(ctx context.Context, id string) (*models.PaymentDetail, error) {
	const query = `SELECT pay.id, pay.session_id, pay.receipt_number, pay.amount, pay.method, pay.status, pay.paid_at,
pay.created_at, pay.updated_at, p.full_name AS patient_name, t.full_name AS therapist_name,
svc.name AS service_name, s.scheduled_date AS session_date
FROM payments pay
JOIN sessions s ON s.id = pay.session_id
JOIN patients p ON p.id = s.patient_id
JOIN therapists t ON t.id = s.therapist_id
JOIN services svc ON svc.id = s.service_id
WHERE pay.id = $1`
	var detail models.PaymentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Create stores a new payment record.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	const query = `INSERT INTO payments (id, session_id, receipt_number, amount, method, status, paid_at, created_at, updated_at)
VALUES (:id, :session_id, :receipt_number, :amount, :method, :status, :paid_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// UpdateStatus transitions a payment's status, stamping paid_at on PAID.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	now := time.Now().UTC()
	var paidAt *time.Time
	if status == models.PaymentStatusPaid {
		paidAt = &now
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE payments SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = $4 WHERE id = $1`,
		id, status, paidAt, now); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}
