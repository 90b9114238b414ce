package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruangpulih/clinic-api/internal/models"
	appErrors "github.com/ruangpulih/clinic-api/pkg/errors"
	"github.com/ruangpulih/clinic-api/pkg/export"
)

type paymentRepoStub struct {
	details    map[string]models.PaymentDetail
	created    *models.Payment
	lastStatus models.PaymentStatus
}

func (s *paymentRepoStub) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	return nil, 0, nil
}

func (s *paymentRepoStub) FindDetail(ctx context.Context, id string) (*models.PaymentDetail, error) {
	if detail, ok := s.details[id]; ok {
		return &detail, nil
	}
	return nil, sql.ErrNoRows
}

func (s *paymentRepoStub) Create(ctx context.Context, payment *models.Payment) error {
	payment.ID = "pay-new"
	s.created = payment
	return nil
}

func (s *paymentRepoStub) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	s.lastStatus = status
	detail := s.details[id]
	detail.Status = status
	s.details[id] = detail
	return nil
}

type paymentSessionStub struct {
	sessions map[string]models.TherapySession
}

func (s *paymentSessionStub) FindByID(ctx context.Context, id string) (*models.TherapySession, error) {
	if sess, ok := s.sessions[id]; ok {
		return &sess, nil
	}
	return nil, sql.ErrNoRows
}

type rendererStub struct {
	lastReceipt  *export.ReceiptDocument
	lastProposal *export.ProposalDocument
}

func (r *rendererStub) RenderReceipt(doc export.ReceiptDocument) ([]byte, error) {
	r.lastReceipt = &doc
	return []byte("%PDF"), nil
}

func (r *rendererStub) RenderProposal(doc export.ProposalDocument) ([]byte, error) {
	r.lastProposal = &doc
	return []byte("%PDF"), nil
}

func newPaymentService(repo *paymentRepoStub, sessions *paymentSessionStub, renderer *rendererStub) *PaymentService {
	if sessions == nil {
		sessions = &paymentSessionStub{}
	}
	if renderer == nil {
		renderer = &rendererStub{}
	}
	svc := NewPaymentService(repo, sessions, renderer, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestPaymentServiceCreateAssignsReceiptNumber(t *testing.T) {
	repo := &paymentRepoStub{}
	sessions := &paymentSessionStub{sessions: map[string]models.TherapySession{
		"sess-1": {ID: "sess-1"},
	}}
	svc := newPaymentService(repo, sessions, nil)

	payment, err := svc.Create(context.Background(), CreatePaymentRequest{
		SessionID: "sess-1",
		Amount:    350000,
		Method:    models.PaymentMethodCash,
	})
	require.NoError(t, err)

	assert.Equal(t, "RCP-"+fixedNow.Format("20060102-150405"), payment.ReceiptNumber)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
}

func TestPaymentServiceCreateRejectsUnknownSession(t *testing.T) {
	svc := newPaymentService(&paymentRepoStub{}, nil, nil)

	_, err := svc.Create(context.Background(), CreatePaymentRequest{
		SessionID: "missing",
		Amount:    100000,
		Method:    models.PaymentMethodCard,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceCreateRejectsUnknownMethod(t *testing.T) {
	svc := newPaymentService(&paymentRepoStub{}, nil, nil)

	_, err := svc.Create(context.Background(), CreatePaymentRequest{
		SessionID: "sess-1",
		Amount:    100000,
		Method:    "CRYPTO",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceMarkPaidOnlyFromPending(t *testing.T) {
	repo := &paymentRepoStub{details: map[string]models.PaymentDetail{
		"pay-1": {Payment: models.Payment{ID: "pay-1", Status: models.PaymentStatusPending}},
		"pay-2": {Payment: models.Payment{ID: "pay-2", Status: models.PaymentStatusPaid}},
	}}
	svc := newPaymentService(repo, nil, nil)

	detail, err := svc.MarkPaid(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, detail.Status)

	_, err = svc.MarkPaid(context.Background(), "pay-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceRefundOnlyFromPaid(t *testing.T) {
	repo := &paymentRepoStub{details: map[string]models.PaymentDetail{
		"pay-1": {Payment: models.Payment{ID: "pay-1", Status: models.PaymentStatusPaid}},
		"pay-2": {Payment: models.Payment{ID: "pay-2", Status: models.PaymentStatusPending}},
	}}
	svc := newPaymentService(repo, nil, nil)

	detail, err := svc.Refund(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, detail.Status)

	_, err = svc.Refund(context.Background(), "pay-2")
	require.Error(t, err)
}

func TestPaymentServiceReceiptRejectsPending(t *testing.T) {
	repo := &paymentRepoStub{details: map[string]models.PaymentDetail{
		"pay-1": {Payment: models.Payment{ID: "pay-1", Status: models.PaymentStatusPending}},
	}}
	svc := newPaymentService(repo, nil, nil)

	_, _, err := svc.Receipt(context.Background(), "pay-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPaymentServiceReceiptRendersSettledPayment(t *testing.T) {
	paidAt := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	repo := &paymentRepoStub{details: map[string]models.PaymentDetail{
		"pay-1": {
			Payment: models.Payment{
				ID:            "pay-1",
				ReceiptNumber: "RCP-20260309-143000",
				Amount:        350000,
				Method:        models.PaymentMethodTransfer,
				Status:        models.PaymentStatusPaid,
				PaidAt:        &paidAt,
			},
			PatientName:   "Ayu Lestari",
			TherapistName: "Dr. Sari",
			ServiceName:   "Speech Therapy",
			SessionDate:   time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
	}}
	renderer := &rendererStub{}
	svc := newPaymentService(repo, nil, renderer)

	data, filename, err := svc.Receipt(context.Background(), "pay-1")
	require.NoError(t, err)

	assert.NotEmpty(t, data)
	assert.Equal(t, "receipt-RCP-20260309-143000.pdf", filename)
	require.NotNil(t, renderer.lastReceipt)
	assert.Equal(t, paidAt, renderer.lastReceipt.IssuedAt)
	assert.Equal(t, "Ayu Lestari", renderer.lastReceipt.PatientName)
}

func TestPaymentServiceProposalRendersLines(t *testing.T) {
	renderer := &rendererStub{}
	svc := newPaymentService(&paymentRepoStub{}, nil, renderer)

	data, filename, err := svc.Proposal(context.Background(), ProposalRequest{
		PatientName: "Budi Santoso",
		Lines: []ProposalLineRequest{
			{ServiceName: "Occupational Therapy", TherapistName: "Dr. Sari", Sessions: 8, DurationMinutes: 45, UnitPrice: 300000},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, data)
	assert.Equal(t, "proposal-"+fixedNow.Format("20060102-150405")+".pdf", filename)
	require.NotNil(t, renderer.lastProposal)
	require.Len(t, renderer.lastProposal.Lines, 1)
	assert.Equal(t, 8, renderer.lastProposal.Lines[0].Sessions)
}

func TestPaymentServiceProposalRequiresLines(t *testing.T) {
	svc := newPaymentService(&paymentRepoStub{}, nil, nil)

	_, _, err := svc.Proposal(context.Background(), ProposalRequest{PatientName: "Budi Santoso"})
	require.Error(t, err)
}
