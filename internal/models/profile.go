package models

import (
	"time"

	"gorm.io/gorm"
)

type CourierStatus string

const (
	CourierAvailable  CourierStatus = "available"
	CourierOnDelivery CourierStatus = "on_delivery"
	CourierEmergency  CourierStatus = "emergency"
	CourierOffline    CourierStatus = "offline"
)

func (s CourierStatus) IsValid() bool {
	switch s {
	case CourierAvailable, CourierOnDelivery, CourierEmergency, CourierOffline:
		return true
	}
	return false
}

// CourierProfile is the last known safety state of a courier.
type CourierProfile struct {
	ID                uint          `json:"-" gorm:"primaryKey"`
	CourierID         uint          `json:"courier_id" gorm:"uniqueIndex;not null"`
	Status            CourierStatus `json:"status" gorm:"size:16;index;not null;default:available"`
	LastLat           *float64      `json:"lat" gorm:"type:decimal(9,6)"`
	LastLon           *float64      `json:"lon" gorm:"type:decimal(9,6)"`
	Battery           *int          `json:"battery"`
	LocationUpdatedAt *time.Time    `json:"location_updated_at"`
	BatteryUpdatedAt  *time.Time    `json:"battery_updated_at"`
	StatusUpdatedAt   *time.Time    `json:"status_updated_at"`
	CreatedAt         time.Time     `json:"-" gorm:"autoCreateTime"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// CreateProfile creates an available profile for courierID.
func CreateProfile(db *gorm.DB, courierID uint) (*CourierProfile, error) {
	p := &CourierProfile{CourierID: courierID, Status: CourierAvailable}
	if err := db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func GetProfile(db *gorm.DB, courierID uint) (*CourierProfile, error) {
	var p CourierProfile
	if err := db.Where("courier_id = ?", courierID).First(&p).Error; err != nil {
		return nil, notFound(err, "profile of courier %d not found", courierID)
	}
	return &p, nil
}

// UpdateProfile writes fields and returns the fresh row. Last write wins.
func UpdateProfile(db *gorm.DB, courierID uint, fields map[string]interface{}) (*CourierProfile, error) {
	res := db.Model(&CourierProfile{}).Where("courier_id = ?", courierID).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	// mysql reports zero affected rows for unchanged values, so existence
	// is decided by the read
	return GetProfile(db, courierID)
}

// ListStaleProfiles returns non-emergency, non-offline profiles whose last
// location is older than before, or that never reported one and were last
// touched before it.
func ListStaleProfiles(db *gorm.DB, before time.Time) ([]CourierProfile, error) {
	var out []CourierProfile
	err := db.Where("status IN ?", []CourierStatus{CourierAvailable, CourierOnDelivery}).
		Where("(location_updated_at IS NOT NULL AND location_updated_at < ?) OR (location_updated_at IS NULL AND updated_at < ?)", before, before).
		Find(&out).Error
	return out, err
}

// MarkProfileOffline sets a stale profile offline unless it changed status
// or reported a location since it was listed. It reports whether the row
// was updated.
func MarkProfileOffline(db *gorm.DB, courierID uint, before, now time.Time) (bool, error) {
	res := db.Model(&CourierProfile{}).
		Where("courier_id = ? AND status IN ?", courierID, []CourierStatus{CourierAvailable, CourierOnDelivery}).
		Where("location_updated_at IS NULL OR location_updated_at < ?", before).
		Updates(map[string]interface{}{"status": CourierOffline, "status_updated_at": now})
	return res.RowsAffected > 0, res.Error
}
