package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrajectorySample is one GPS fix received while an alert was active.
type TrajectorySample struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AlertID   uuid.UUID `json:"alert_id" gorm:"type:char(36);not null;index:idx_trajectory_alert_ts,priority:1"`
	Lat       float64   `json:"lat" gorm:"type:decimal(9,6);not null"`
	Lon       float64   `json:"lon" gorm:"type:decimal(9,6);not null"`
	Accuracy  *float64  `json:"accuracy"`
	Speed     *float64  `json:"speed"`
	Timestamp time.Time `json:"timestamp" gorm:"autoCreateTime;index:idx_trajectory_alert_ts,priority:2"`
}

func CreateTrajectorySample(db *gorm.DB, sample *TrajectorySample) error {
	return db.Create(sample).Error
}

// ListTrajectory returns the samples of an alert in path order.
func ListTrajectory(db *gorm.DB, alertID uuid.UUID) ([]TrajectorySample, error) {
	var samples []TrajectorySample
	err := db.Where("alert_id = ?", alertID).
		Order("timestamp ASC").Order("id ASC").
		Find(&samples).Error
	return samples, err
}

// ListTrajectoryRange returns the samples taken in [from, to).
func ListTrajectoryRange(db *gorm.DB, alertID uuid.UUID, from, to time.Time) ([]TrajectorySample, error) {
	var samples []TrajectorySample
	err := db.Where("alert_id = ? AND timestamp >= ? AND timestamp < ?", alertID, from, to).
		Order("timestamp ASC").Order("id ASC").
		Find(&samples).Error
	return samples, err
}
