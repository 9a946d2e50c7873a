package alerting

import (
	"context"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cancel marks the caller's own pending alert as a false alarm. Once an
// operator is attending, only the operator can close it.
func (s *Service) Cancel(ctx context.Context, actor *auth.Identity, alertID uuid.UUID) (*Result, error) {
	if err := requireCourier(actor); err != nil {
		return nil, err
	}

	var (
		alert   *models.Alert
		profile *models.CourierProfile
	)
	err := s.transition(ctx, alertID, func(tx *gorm.DB, a *models.Alert) error {
		if err := requireOwner(actor, a); err != nil {
			return err
		}
		if a.Status != models.AlertPending {
			return errs.InvalidTransition("alert %s cannot be cancelled while %s", a.ID, a.Status)
		}
		if err := models.UpdateAlert(tx, a, map[string]interface{}{"status": models.AlertFalseAlarm}); err != nil {
			return err
		}
		p, err := s.presence.In(tx).SetAvailable(ctx, a.CourierID)
		if err != nil {
			return err
		}
		alert, profile = a, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("alert cancelled", zap.String("alert_id", alert.ID.String()), zap.Uint("courier_id", alert.CourierID))
	s.broadcast(events.AlertUpdated(alert))
	s.presence.Announce(ctx, profile)
	return newResult(MsgAlertCancelled, true, alert, nil), nil
}
