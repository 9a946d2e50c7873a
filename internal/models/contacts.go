package models

import (
	"time"

	"gorm.io/gorm"
)

// TrustedContact is someone a courier wants warned when an alert fires.
type TrustedContact struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	CourierID    uint      `json:"courier_id" gorm:"index;not null"`
	Name         string    `json:"name" gorm:"size:128"`
	Phone        string    `json:"phone" gorm:"size:32"`
	PushAlias    string    `json:"push_alias,omitempty" gorm:"size:128"`
	Relationship string    `json:"relationship,omitempty" gorm:"size:64"`
	Active       bool      `json:"active" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func CreateTrustedContact(db *gorm.DB, c *TrustedContact) error {
	return db.Create(c).Error
}

// ListTrustedContacts returns the active contacts of a courier.
func ListTrustedContacts(db *gorm.DB, courierID uint) ([]TrustedContact, error) {
	var out []TrustedContact
	err := db.Where("courier_id = ? AND active = ?", courierID, true).Order("id ASC").Find(&out).Error
	return out, err
}
