package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking statuses.
const (
	BookingPendingPayment = "pending_payment"
	BookingConfirmed      = "confirmed"
	BookingPaymentFailed  = "payment_failed"
	BookingCancelled      = "cancelled"
)

// Booking payment statuses (projection of the first settlement).
const (
	BookingPaymentProcessing = "processing"
	BookingPaymentSettled    = "settled"
	BookingPaymentFailedStr  = "failed"
)

// Booking is a confirmed occupancy for a listing. At most one booking may
// exist per match; the unique index on MatchID is the source of truth for
// that invariant, not application-level checks.
type Booking struct {
	gorm.Model
	MatchID     uint      `json:"matchID" gorm:"not null;uniqueIndex"`
	UserID      uint      `json:"userID" gorm:"not null;index"`
	ListingID   uint      `json:"listingID" gorm:"not null;index"`
	StartDate   time.Time `json:"startDate" gorm:"not null"`
	EndDate     time.Time `json:"endDate" gorm:"not null"` // exclusive move-out date
	MonthlyRent int64     `json:"monthlyRent" gorm:"not null"`
	TotalPrice  int64     `json:"totalPrice"`

	Status        string `json:"status" gorm:"type:varchar(20);default:'pending_payment';index"`
	PaymentStatus string `json:"paymentStatus" gorm:"type:varchar(20);default:'processing'"`

	PaymentSettledAt *time.Time `json:"paymentSettledAt"`
	// PaymentFailedAt marks the start of the grace period; the expiry sweep
	// computes the cancellation deadline from it.
	PaymentFailedAt *time.Time `json:"paymentFailedAt"`

	Match        *Match        `json:"match,omitempty" gorm:"foreignKey:MatchID"`
	User         *User         `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Listing      *Listing      `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	RentPayments []RentPayment `json:"rentPayments,omitempty" gorm:"foreignKey:BookingID"`
}
