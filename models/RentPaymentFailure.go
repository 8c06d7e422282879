package models

import (
	"time"
)

// Failure types recorded per attempt.
const (
	FailureTypeCardDecline     = "card_decline"
	FailureTypeBankReturn      = "bank_return"
	FailureTypeProcessingError = "processing_error"
)

// RentPaymentFailure is an append-only audit record of one failed gateway
// attempt for a rent payment. The existence of a row for a given
// (rent payment, intent, code) is also how the reconciler detects a
// redelivered failure event.
type RentPaymentFailure struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	RentPaymentID   uint      `json:"rentPaymentID" gorm:"not null;index"`
	FailureCode     string    `json:"failureCode" gorm:"type:varchar(64)"`
	FailureMessage  string    `json:"failureMessage" gorm:"type:text"`
	FailureType     string    `json:"failureType" gorm:"type:varchar(32)"`
	GatewayIntentID string    `json:"gatewayIntentID" gorm:"type:varchar(64);index"`
	AttemptNumber   int       `json:"attemptNumber"`
	CreatedAt       time.Time `json:"createdAt"`

	RentPayment *RentPayment `json:"rentPayment,omitempty" gorm:"foreignKey:RentPaymentID"`
}
