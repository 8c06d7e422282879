package models

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	FirstName           string         `json:"firstName"`
	LastName            string         `json:"lastName"`
	Email               string         `json:"email" gorm:"uniqueIndex"`
	PhoneNumber         string         `json:"phoneNumber"`
	PushTokens          datatypes.JSON `json:"pushTokens"`
	AllowsNotifications *bool          `json:"allowsNotifications"`
	Role                string         `json:"role" gorm:"type:varchar(20);default:user;index"` // user, host, admin, super_admin

	// Gateway references. A renter pays through GatewayCustomerID +
	// DefaultPaymentMethodID; a host receives payouts through
	// GatewayAccountID once GatewayChargesEnabled is set by onboarding.
	GatewayCustomerID      string `json:"gatewayCustomerID" gorm:"type:varchar(64);index"`
	GatewayAccountID       string `json:"gatewayAccountID" gorm:"type:varchar(64);index"`
	GatewayChargesEnabled  bool   `json:"gatewayChargesEnabled" gorm:"default:false"`
	DefaultPaymentMethodID string `json:"defaultPaymentMethodID" gorm:"type:varchar(64)"`

	Listings []Listing `json:"listings,omitempty" gorm:"foreignKey:HostID;references:ID"`
}

// FullName joins first and last names, falling back to the email.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Custom JSON marshaling to expose PushTokens as a string array
func (u *User) MarshalJSON() ([]byte, error) {
	type Alias User
	aux := &struct {
		PushTokens []string `json:"pushTokens,omitempty"`
		*Alias
	}{
		PushTokens: []string{},
		Alias:      (*Alias)(u),
	}

	if u.PushTokens != nil {
		var pushTokens []string
		if err := json.Unmarshal(u.PushTokens, &pushTokens); err == nil {
			aux.PushTokens = pushTokens
		}
	}

	// Listings are excluded to prevent circular references
	aux.Alias.Listings = nil

	return json.Marshal(aux)
}
