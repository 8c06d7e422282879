package models

import (
	"time"

	"gorm.io/gorm"
)

// ListingUnavailability blocks a listing's dates so the span cannot be
// re-booked. Created alongside a confirmed booking; deleted only if the
// booking is cancelled before settlement.
type ListingUnavailability struct {
	gorm.Model
	ListingID uint      `json:"listingID" gorm:"not null;index"`
	StartDate time.Time `json:"startDate" gorm:"not null"`
	EndDate   time.Time `json:"endDate" gorm:"not null"`
	Reason    string    `json:"reason" gorm:"type:varchar(32);default:'Booking'"`

	Listing *Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
}
