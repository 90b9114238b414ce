package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
	"github.com/ruangpulih/clinic-api/pkg/export"
)

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindDetail(ctx context.Context, id string) (*models.PaymentDetail, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error
}

type paymentSessionStore interface {
	FindByID(ctx context.Context, id string) (*models.TherapySession, error)
}

type receiptRenderer interface {
	RenderReceipt(doc export.ReceiptDocument) ([]byte, error)
	RenderProposal(doc export.ProposalDocument) ([]byte, error)
}

// CreatePaymentRequest describes payload for recording a payment.
type CreatePaymentRequest struct {
	SessionID string               `json:"session_id" validate:"required"`
	Amount    float64              `json:"amount" validate:"required,gt=0"`
	Method    models.PaymentMethod `json:"method" validate:"required"`
}

// ProposalRequest describes a priced treatment plan to render.
type ProposalRequest struct {
	PatientName string                `json:"patient_name" validate:"required"`
	Notes       string                `json:"notes"`
	Lines       []ProposalLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ProposalLineRequest is one line in a proposal.
type ProposalLineRequest struct {
	ServiceName     string  `json:"service_name" validate:"required"`
	TherapistName   string  `json:"therapist_name" validate:"required"`
	Sessions        int     `json:"sessions" validate:"required,min=1"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,min=15,max=480"`
	UnitPrice       float64 `json:"unit_price" validate:"required,gt=0"`
}

// PaymentService records payments and renders receipts and proposals.
type PaymentService struct {
	repo      paymentRepository
	sessions  paymentSessionStore
	exporter  receiptRenderer
	validator *validator.Validate
	now       func() time.Time
}

// NewPaymentService instantiates PaymentService.
func NewPaymentService(repo paymentRepository, sessions paymentSessionStore, exporter receiptRenderer, validate *validator.Validate) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	return &PaymentService{repo: repo, sessions: sessions, exporter: exporter, validator: validate, now: time.Now}
}

// List returns payments with pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads a payment with its receipt display fields.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentDetail, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return detail, nil
}

// Create records a payment against an existing session. The receipt number
// is assigned here and never reused.
func (s *PaymentService) Create(ctx context.Context, req CreatePaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	switch req.Method {
	case models.PaymentMethodCash, models.PaymentMethodCard, models.PaymentMethodTransfer:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported payment method")
	}

	if _, err := s.sessions.FindByID(ctx, req.SessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	payment := models.Payment{
		SessionID:     req.SessionID,
		ReceiptNumber: s.nextReceiptNumber(),
		Amount:        req.Amount,
		Method:        req.Method,
		Status:        models.PaymentStatusPending,
	}

	if err := s.repo.Create(ctx, &payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}
	return &payment, nil
}

// MarkPaid transitions a payment to PAID and stamps paid_at.
func (s *PaymentService) MarkPaid(ctx context.Context, id string) (*models.PaymentDetail, error) {
	return s.transition(ctx, id, models.PaymentStatusPaid)
}

// Refund transitions a PAID payment to REFUNDED.
func (s *PaymentService) Refund(ctx context.Context, id string) (*models.PaymentDetail, error) {
	return s.transition(ctx, id, models.PaymentStatusRefunded)
}

func (s *PaymentService) transition(ctx context.Context, id string, target models.PaymentStatus) (*models.PaymentDetail, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	switch {
	case target == models.PaymentStatusPaid && detail.Status != models.PaymentStatusPending:
		return nil, appErrors.Clone(appErrors.ErrConflict, "only pending payments can be marked paid")
	case target == models.PaymentStatusRefunded && detail.Status != models.PaymentStatusPaid:
		return nil, appErrors.Clone(appErrors.ErrConflict, "only paid payments can be refunded")
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}

	detail, err = s.repo.FindDetail(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload payment")
	}
	return detail, nil
}

// Receipt renders the payment receipt as a PDF. Only paid or refunded
// payments carry a printable receipt.
func (s *PaymentService) Receipt(ctx context.Context, id string) ([]byte, string, error) {
	detail, err := s.repo.FindDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if detail.Status == models.PaymentStatusPending {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "receipt is available once the payment is settled")
	}

	issuedAt := detail.CreatedAt
	if detail.PaidAt != nil {
		issuedAt = *detail.PaidAt
	}

	data, err := s.exporter.RenderReceipt(export.ReceiptDocument{
		ReceiptNumber: detail.ReceiptNumber,
		IssuedAt:      issuedAt,
		PatientName:   detail.PatientName,
		TherapistName: detail.TherapistName,
		ServiceName:   detail.ServiceName,
		SessionDate:   detail.SessionDate.Format("2 January 2006"),
		Amount:        detail.Amount,
		Method:        string(detail.Method),
		Status:        string(detail.Status),
	})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}

	filename := fmt.Sprintf("receipt-%s.pdf", detail.ReceiptNumber)
	return data, filename, nil
}

// Proposal renders a priced treatment plan as a PDF.
func (s *PaymentService) Proposal(ctx context.Context, req ProposalRequest) ([]byte, string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proposal payload")
	}

	doc := export.ProposalDocument{
		PatientName: req.PatientName,
		PreparedAt:  s.now(),
		Notes:       req.Notes,
	}
	for _, line := range req.Lines {
		doc.Lines = append(doc.Lines, export.ProposalLine{
			ServiceName:     line.ServiceName,
			TherapistName:   line.TherapistName,
			Sessions:        line.Sessions,
			DurationMinutes: line.DurationMinutes,
			UnitPrice:       line.UnitPrice,
		})
	}

	data, err := s.exporter.RenderProposal(doc)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render proposal")
	}

	filename := fmt.Sprintf("proposal-%s.pdf", s.now().Format("20060102-150405"))
	return data, filename, nil
}

// nextReceiptNumber derives a receipt number from the clock. A collision
// within the same second is acceptable for a single-clinic deployment.
func (s *PaymentService) nextReceiptNumber() string {
	return fmt.Sprintf("RCP-%s", s.now().Format("20060102-150405"))
}
