package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleCourier       = "courier"
	RoleOperator      = "operator"
	RoleAdministrator = "administrator"
)

// User is the account record shared by couriers and operators. Credentials
// are managed outside this service.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:128"`
	Phone     string    `json:"phone" gorm:"size:32"`
	Email     string    `json:"email,omitempty" gorm:"size:128"`
	Role      string    `json:"role" gorm:"size:20;index"`
	Active    bool      `json:"active" gorm:"default:true"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func CreateUser(db *gorm.DB, user *User) error {
	return db.Create(user).Error
}

// GetUser returns NotFound when id is unknown.
func GetUser(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, notFound(err, "user %d not found", id)
	}
	return &user, nil
}
