package alerting

import (
	"context"
	"strings"
	"time"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Close ends an alert. The incident, when there is one, is closed and its
// response duration fixed; a closed alert stays closed and a repeated call
// changes nothing.
func (s *Service) Close(ctx context.Context, actor *auth.Identity, alertID uuid.UUID, notes string) (*Result, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	notes = strings.TrimSpace(notes)

	var (
		alert    *models.Alert
		incident *models.Incident
		profile  *models.CourierProfile
		changed  bool
	)
	err := s.transition(ctx, alertID, func(tx *gorm.DB, a *models.Alert) error {
		alert = a
		inc, err := models.FindIncidentByAlert(tx, a.ID)
		if err != nil {
			return err
		}
		incident = inc

		switch a.Status {
		case models.AlertClosed:
			return nil
		case models.AlertPending, models.AlertInAttention:
		default:
			return errs.InvalidTransition("alert %s cannot be closed while %s", a.ID, a.Status)
		}

		fields := map[string]interface{}{"status": models.AlertClosed}
		if a.AttendedByID == nil {
			fields["attended_by_id"] = actor.UserID
		}
		if err := models.UpdateAlert(tx, a, fields); err != nil {
			return err
		}

		if inc != nil && inc.Close(time.Now().UTC()) {
			if err := models.SaveIncident(tx, inc); err != nil {
				return err
			}
			if _, err := models.AppendLogEntry(tx, inc.ID, actor.UserID, closeLogText(notes)); err != nil {
				return err
			}
		}

		p, err := s.presence.In(tx).SetAvailable(ctx, a.CourierID)
		if err != nil {
			return err
		}
		profile, changed = p, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		return newResult(MsgAlreadyClosed, false, alert, incident), nil
	}
	s.log.Info("alert closed", zap.String("alert_id", alert.ID.String()), zap.Uint("operator_id", actor.UserID))
	s.broadcast(events.AlertUpdated(alert))
	s.presence.Announce(ctx, profile)
	return newResult(MsgAlertClosed, true, alert, incident), nil
}

func closeLogText(notes string) string {
	if notes == "" {
		return "alert closed"
	}
	return "alert closed: " + notes
}
