package models

import (
	"time"

	"gorm.io/gorm"
)

// Rent payment statuses. Transitions only move forward except
// FAILED -> SCHEDULED (retry reset); SUCCEEDED is terminal.
const (
	RentPaymentScheduled  = "SCHEDULED"
	RentPaymentAuthorized = "AUTHORIZED"
	RentPaymentProcessing = "PROCESSING"
	RentPaymentSucceeded  = "SUCCEEDED"
	RentPaymentFailed     = "FAILED"
)

// RentPayment is one scheduled rent charge for a booking. Amounts are in
// cents. Rows are never deleted; a cancelled booking sets CancelledAt.
type RentPayment struct {
	gorm.Model
	BookingID       uint       `json:"bookingID" gorm:"not null;uniqueIndex:idx_rent_payments_booking_due,priority:1"`
	Amount          int64      `json:"amount" gorm:"not null"`
	DueDate         time.Time  `json:"dueDate" gorm:"not null;uniqueIndex:idx_rent_payments_booking_due,priority:2"`
	Status          string     `json:"status" gorm:"type:varchar(20);default:'SCHEDULED';index"`
	IsPaid          bool       `json:"isPaid" gorm:"default:false"`
	IsProrated      bool       `json:"isProrated" gorm:"default:false"`
	PaymentMethodID string     `json:"paymentMethodID" gorm:"type:varchar(64)"`
	GatewayIntentID string     `json:"gatewayIntentID" gorm:"type:varchar(64);index"`
	FailureReason   string     `json:"failureReason" gorm:"type:text"`
	RetryCount      int        `json:"retryCount" gorm:"default:0"`
	LastRetryAt     *time.Time `json:"lastRetryAt"`

	PaymentAuthorizedAt *time.Time `json:"paymentAuthorizedAt"`
	PaymentCapturedAt   *time.Time `json:"paymentCapturedAt"`
	CancelledAt         *time.Time `json:"cancelledAt"`

	Booking *Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
}

// Settled reports whether the payment reached a terminal successful state.
func (rp *RentPayment) Settled() bool {
	return rp.Status == RentPaymentSucceeded || rp.IsPaid
}
