package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RouteVariantFast  = "fast"
	RouteVariantSafer = "safer"
)

// SafeRoute stores one route bundle returned by the planner and the
// variant the courier picked.
type SafeRoute struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	CourierID      uint           `json:"courier_id" gorm:"index;not null"`
	OriginLat      float64        `json:"origin_lat" gorm:"type:decimal(9,6)"`
	OriginLon      float64        `json:"origin_lon" gorm:"type:decimal(9,6)"`
	DestLat        float64        `json:"dest_lat" gorm:"type:decimal(9,6)"`
	DestLon        float64        `json:"dest_lon" gorm:"type:decimal(9,6)"`
	FastRoute      datatypes.JSON `json:"fast_route"`
	SaferRoutes    datatypes.JSON `json:"safer_routes"`
	FastRiskScore  float64        `json:"fast_risk_score"`
	SaferRiskScore float64        `json:"safer_risk_score"`
	Selected       string         `json:"selected" gorm:"size:16"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func CreateSafeRoute(db *gorm.DB, r *SafeRoute) error {
	return db.Create(r).Error
}

func GetSafeRoute(db *gorm.DB, id uint) (*SafeRoute, error) {
	var r SafeRoute
	if err := db.First(&r, id).Error; err != nil {
		return nil, notFound(err, "route %d not found", id)
	}
	return &r, nil
}

func SelectRouteVariant(db *gorm.DB, r *SafeRoute, variant string) error {
	if err := db.Model(r).Update("selected", variant).Error; err != nil {
		return err
	}
	r.Selected = variant
	return nil
}
