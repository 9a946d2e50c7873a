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

// AttendLogText is the log line written when an incident is opened.
const AttendLogText = "taken into attention"

// Attend moves a pending alert into attention and opens its incident. The
// first operator wins; later calls return the current state unchanged.
func (s *Service) Attend(ctx context.Context, actor *auth.Identity, alertID uuid.UUID) (*Result, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}

	var (
		alert    *models.Alert
		incident *models.Incident
		changed  bool
	)
	err := s.transition(ctx, alertID, func(tx *gorm.DB, a *models.Alert) error {
		alert = a
		switch a.Status {
		case models.AlertInAttention:
			inc, err := models.FindIncidentByAlert(tx, a.ID)
			incident = inc
			return err
		case models.AlertPending:
		default:
			return errs.InvalidTransition("alert %s cannot be attended while %s", a.ID, a.Status)
		}

		operatorID := actor.UserID
		if err := models.UpdateAlert(tx, a, map[string]interface{}{
			"status":         models.AlertInAttention,
			"attended_by_id": operatorID,
		}); err != nil {
			return err
		}
		inc, created, err := models.GetOrCreateIncident(tx, a.ID, operatorID)
		if err != nil {
			return err
		}
		if created {
			if _, err := models.AppendLogEntry(tx, inc.ID, operatorID, AttendLogText); err != nil {
				return err
			}
		}
		incident, changed = inc, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		return newResult(MsgAlreadyAttended, false, alert, incident), nil
	}
	s.log.Info("alert attended", zap.String("alert_id", alert.ID.String()), zap.Uint("operator_id", actor.UserID))
	s.broadcast(events.AlertUpdated(alert))
	return newResult(MsgAlertAttended, true, alert, incident), nil
}
