package models

import (
	"time"

	"gorm.io/gorm"
)

// PaymentTransaction is one append-only ledger row per gateway attempt.
// Rows are never mutated after creation; corrections are new rows. This is
// the audit trail, independent of the mutable RentPayment status.
type PaymentTransaction struct {
	gorm.Model
	TransactionNumber string `json:"transactionNumber" gorm:"type:varchar(64);uniqueIndex"`
	GatewayIntentID   string `json:"gatewayIntentID" gorm:"type:varchar(64);index"`
	Amount            int64  `json:"amount" gorm:"not null"`
	Currency          string `json:"currency" gorm:"type:varchar(8);default:'usd'"`
	Status            string `json:"status" gorm:"type:varchar(20);index"` // pending, succeeded, failed
	PaymentMethod     string `json:"paymentMethod" gorm:"type:varchar(32)"`
	PlatformFeeAmount int64  `json:"platformFeeAmount"`
	NetAmount         int64  `json:"netAmount"`

	ProcessedAt *time.Time `json:"processedAt"`

	UserID        uint  `json:"userID" gorm:"index"`
	BookingID     uint  `json:"bookingID" gorm:"index"`
	RentPaymentID *uint `json:"rentPaymentID" gorm:"index"`
}
