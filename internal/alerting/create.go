package alerting

import (
	"context"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateInput is what a courier device sends when raising an alert.
type CreateInput struct {
	Kind       string                 `json:"kind"`
	Lat        *float64               `json:"lat"`
	Lon        *float64               `json:"lon"`
	Battery    *int                   `json:"battery"`
	SensorData map[string]interface{} `json:"sensor_data"`
}

func (in CreateInput) validate() (models.AlertKind, error) {
	kind, ok := models.ParseAlertKind(in.Kind)
	if !ok {
		return "", errs.Validation("unknown alert kind %q", in.Kind)
	}
	if in.Lat == nil || in.Lon == nil {
		return "", errs.Validation("location is required to raise an alert")
	}
	if !models.ValidCoord(*in.Lat, *in.Lon) {
		return "", errs.Validation("coordinates out of range: %f,%f", *in.Lat, *in.Lon)
	}
	if in.Battery != nil && (*in.Battery < 0 || *in.Battery > 100) {
		return "", errs.Validation("battery level %d out of range 0-100", *in.Battery)
	}
	return kind, nil
}

// Create raises a pending alert for the calling courier, puts the courier
// in emergency and warns the trusted contacts. A failed notification is
// reported in the result; the alert stands.
func (s *Service) Create(ctx context.Context, actor *auth.Identity, in CreateInput) (*Result, error) {
	if err := requireCourier(actor); err != nil {
		return nil, err
	}
	kind, err := in.validate()
	if err != nil {
		return nil, err
	}

	lat, lon := models.RoundCoord(*in.Lat), models.RoundCoord(*in.Lon)
	var (
		alert   *models.Alert
		profile *models.CourierProfile
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a := &models.Alert{
			CourierID:  actor.UserID,
			Kind:       kind,
			Status:     models.AlertPending,
			Lat:        lat,
			Lon:        lon,
			Battery:    in.Battery,
			SensorData: in.SensorData,
		}
		if err := models.CreateAlert(tx, a); err != nil {
			return err
		}
		p, err := s.presence.In(tx).SetEmergency(ctx, actor.UserID, lat, lon, in.Battery)
		if err != nil {
			return err
		}
		profile = p
		alert, err = models.GetAlert(tx, a.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("alert created",
		zap.String("alert_id", alert.ID.String()),
		zap.Uint("courier_id", alert.CourierID),
		zap.String("kind", string(alert.Kind)))
	s.broadcast(events.NewAlert(alert))
	s.presence.Announce(ctx, profile)

	res := newResult(MsgAlertCreated, true, alert, nil)
	s.notifyContacts(ctx, alert, res)
	return res, nil
}
