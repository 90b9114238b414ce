package models

import "time"

// PaymentStatus tracks the lifecycle of a payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod enumerates supported payment channels.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

// Payment records money received against a therapy session.
type Payment struct {
	ID            string        `db:"id" json:"id"`
	SessionID     string        `db:"session_id" json:"session_id"`
	ReceiptNumber string        `db:"receipt_number" json:"receipt_number"`
	Amount        float64       `db:"amount" json:"amount"`
	Method        PaymentMethod `db:"method" json:"method"`
	Status        PaymentStatus `db:"status" json:"status"`
	PaidAt        *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentDetail joins a payment with the display fields a receipt needs.
type PaymentDetail struct {
	Payment
	PatientName   string    `db:"patient_name" json:"patient_name"`
	TherapistName string    `db:"therapist_name" json:"therapist_name"`
	ServiceName   string    `db:"service_name" json:"service_name"`
	SessionDate   time.Time `db:"session_date" json:"session_date"`
}

// PaymentFilter captures filtering criteria for listing payments.
type PaymentFilter struct {
	SessionID string
	Status    string
	Page      int
	PageSize  int
}
