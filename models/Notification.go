package models

import "time"

// Notification represents system notifications for users
type Notification struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"userID" gorm:"not null;index"`
	User   User `json:"user" gorm:"foreignKey:UserID"`

	Type    string `json:"type" gorm:"size:32;index"` // rent_payment_success, rent_payment_failed, etc.
	Title   string `json:"title" gorm:"size:100"`
	Message string `json:"message" gorm:"size:500"`

	// Reference data
	RefType string `json:"refType" gorm:"size:32"` // booking, rent_payment, match
	RefID   uint   `json:"refID"`

	IsRead    bool       `json:"isRead" gorm:"default:false"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt"`
}
