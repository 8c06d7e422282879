package models

import (
	"time"

	"gorm.io/gorm"
)

// Match payment statuses mirror the lifecycle of the lease's first
// settlement. They are a UI-facing projection; RentPayment rows and the
// PaymentTransaction ledger remain authoritative.
const (
	MatchPaymentPending    = "pending"
	MatchPaymentProcessing = "processing"
	MatchPaymentCaptured   = "captured"
	MatchPaymentFailed     = "failed"
)

// Match is the negotiated lease agreement between a renter and a listing.
// It owns zero or one Booking and outlives it if payment never settles.
type Match struct {
	gorm.Model
	ListingID   uint      `json:"listingID" gorm:"not null;index"`
	RenterID    uint      `json:"renterID" gorm:"not null;index"`
	StartDate   time.Time `json:"startDate" gorm:"not null"`
	EndDate     time.Time `json:"endDate" gorm:"not null"` // exclusive
	MonthlyRent int64     `json:"monthlyRent" gorm:"not null"`

	PaymentMethodID string `json:"paymentMethodID" gorm:"type:varchar(64)"`
	GatewayIntentID string `json:"gatewayIntentID" gorm:"type:varchar(64);index"`

	PaymentStatus         string     `json:"paymentStatus" gorm:"type:varchar(20);default:'pending'"`
	PaymentFailureCode    string     `json:"paymentFailureCode" gorm:"type:varchar(64)"`
	PaymentFailureMessage string     `json:"paymentFailureMessage" gorm:"type:text"`
	PaymentAuthorizedAt   *time.Time `json:"paymentAuthorizedAt"`
	PaymentCapturedAt     *time.Time `json:"paymentCapturedAt"`

	Listing *Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	Renter  *User    `json:"renter,omitempty" gorm:"foreignKey:RenterID"`
	Booking *Booking `json:"booking,omitempty" gorm:"foreignKey:MatchID"`
}
