package models

import (
	"gorm.io/gorm"
)

// Listing is a rentable property. Rent and deposit amounts are in cents.
type Listing struct {
	gorm.Model
	HostID          uint   `json:"hostID" gorm:"not null;index"`
	Title           string `json:"title"`
	Description     string `json:"description" gorm:"type:text"`
	AddressLine1    string `json:"addressLine1"`
	AddressLine2    string `json:"addressLine2"`
	City            string `json:"city"`
	State           string `json:"state"`
	Zip             string `json:"zip"`
	Country         string `json:"country"`
	MonthlyRent     int64  `json:"monthlyRent" gorm:"not null"`
	SecurityDeposit int64  `json:"securityDeposit"`
	Currency        string `json:"currency" gorm:"type:varchar(8);default:'usd'"`
	IsActive        *bool  `json:"isActive" gorm:"default:true"`

	Host *User `json:"host,omitempty" gorm:"foreignKey:HostID;references:ID"`
}

// LocationString is the short human-readable address used in notifications.
func (l *Listing) LocationString() string {
	if l.Title != "" {
		return l.Title
	}
	if l.AddressLine1 != "" {
		return l.AddressLine1 + ", " + l.City
	}
	return l.City
}
