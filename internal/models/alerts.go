package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AlertKind string

const (
	AlertKindPanic    AlertKind = "panic"
	AlertKindAccident AlertKind = "accident"
)

// ParseAlertKind accepts the canonical names plus the Spanish aliases the
// courier app sends ("panico", "accidente").
func ParseAlertKind(s string) (AlertKind, bool) {
	switch s {
	case "panic", "panico", "pánico":
		return AlertKindPanic, true
	case "accident", "accidente":
		return AlertKindAccident, true
	}
	return "", false
}

type AlertStatus string

const (
	AlertPending     AlertStatus = "pending"
	AlertInAttention AlertStatus = "in_attention"
	AlertFalseAlarm  AlertStatus = "false_alarm"
	AlertClosed      AlertStatus = "closed"
	// reserved: only reachable through data correction
	AlertResolved AlertStatus = "resolved"
)

// ActiveAlertStatuses are the statuses an operator still has to act on.
var ActiveAlertStatuses = []AlertStatus{AlertPending, AlertInAttention}

// IsTerminal reports whether no further transition is allowed.
func (s AlertStatus) IsTerminal() bool {
	switch s {
	case AlertFalseAlarm, AlertClosed, AlertResolved:
		return true
	}
	return false
}

func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertPending, AlertInAttention, AlertFalseAlarm, AlertClosed, AlertResolved:
		return true
	}
	return false
}

// Alert is one emergency raised by a courier.
type Alert struct {
	ID           uuid.UUID         `json:"id" gorm:"type:char(36);primaryKey"`
	CourierID    uint              `json:"courier_id" gorm:"index;not null"`
	Courier      *User             `json:"courier,omitempty" gorm:"foreignKey:CourierID"`
	Kind         AlertKind         `json:"kind" gorm:"size:16;not null"`
	Status       AlertStatus       `json:"status" gorm:"size:16;index;not null"`
	Lat          float64           `json:"lat" gorm:"type:decimal(9,6);not null"`
	Lon          float64           `json:"lon" gorm:"type:decimal(9,6);not null"`
	Battery      *int              `json:"battery"`
	SensorData   datatypes.JSONMap `json:"sensor_data"`
	AttendedByID *uint             `json:"attended_by,omitempty"`
	CreatedAt    time.Time         `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// RoundCoord fixes a coordinate to the six decimals the store keeps.
func RoundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// ValidCoord reports whether lat/lon lie on the globe.
func ValidCoord(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lon)
}

func CreateAlert(db *gorm.DB, alert *Alert) error {
	return db.Create(alert).Error
}

// GetAlert loads an alert with its courier.
func GetAlert(db *gorm.DB, id uuid.UUID) (*Alert, error) {
	var alert Alert
	if err := db.Preload("Courier").First(&alert, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "alert %s not found", id)
	}
	return &alert, nil
}

// UpdateAlert writes fields and refreshes alert in place.
func UpdateAlert(db *gorm.DB, alert *Alert, fields map[string]interface{}) error {
	if err := db.Model(alert).Updates(fields).Error; err != nil {
		return err
	}
	return db.Preload("Courier").First(alert, "id = ?", alert.ID).Error
}

// ListAlertsByStatus returns alerts in any of statuses, newest first.
func ListAlertsByStatus(db *gorm.DB, statuses ...AlertStatus) ([]Alert, error) {
	var alerts []Alert
	err := db.Preload("Courier").
		Where("status IN ?", statuses).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, err
}

func CountAlertsByStatus(db *gorm.DB, statuses ...AlertStatus) (int64, error) {
	var n int64
	err := db.Model(&Alert{}).Where("status IN ?", statuses).Count(&n).Error
	return n, err
}

// ListCourierAlerts returns a courier's alerts, newest first.
func ListCourierAlerts(db *gorm.DB, courierID uint, limit int) ([]Alert, error) {
	var alerts []Alert
	q := db.Preload("Courier").Where("courier_id = ?", courierID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&alerts).Error
	return alerts, err
}
