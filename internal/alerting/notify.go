package alerting

import (
	"context"
	"fmt"
	"strings"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotifyContacts warns the courier's trusted contacts again. When the
// alert has an incident and someone was reached, the incident records it.
func (s *Service) NotifyContacts(ctx context.Context, actor *auth.Identity, alertID uuid.UUID) (*Result, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return nil, errs.Transient(nil, "contact notification is not configured")
	}
	alert, err := models.GetAlert(s.db.WithContext(ctx), alertID)
	if err != nil {
		return nil, err
	}

	res := newResult(MsgContactsNotified, false, alert, nil)
	if !s.notifyContacts(ctx, alert, res) {
		res.MessageID, res.Reason = MsgNotificationFailed, Reason(MsgNotificationFailed)
		return res, nil
	}
	if res.Notification.ContactsNotified == 0 {
		return res, nil
	}

	var incident *models.Incident
	err = s.transition(ctx, alertID, func(tx *gorm.DB, a *models.Alert) error {
		inc, err := models.FindIncidentByAlert(tx, a.ID)
		if err != nil || inc == nil {
			return err
		}
		inc.ContactsNotified = true
		if err := models.SaveIncident(tx, inc); err != nil {
			return err
		}
		text := fmt.Sprintf("trusted contacts notified: %d delivered, %d failed",
			res.Notification.ContactsNotified, res.Notification.NotificationsFailed)
		if _, err := models.AppendLogEntry(tx, inc.ID, actor.UserID, text); err != nil {
			return err
		}
		incident = inc
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Incident = newIncidentView(incident)
	res.Changed = incident != nil
	return res, nil
}

// notifyContacts runs the notifier for alert and stores the outcome on res.
// It reports false when the collaborator failed as a whole.
func (s *Service) notifyContacts(ctx context.Context, alert *models.Alert, res *Result) bool {
	if s.notifier == nil {
		return false
	}

	contacts, err := models.ListTrustedContacts(s.db.WithContext(ctx), alert.CourierID)
	if err != nil {
		s.notificationFailed(alert, res, errs.Transient(err, "load trusted contacts"))
		return false
	}

	nctx, cancel := context.WithTimeout(ctx, s.opts.NotifyTimeout)
	defer cancel()
	report, err := s.notifier.Notify(nctx, s.alertMessage(alert), toRecipients(contacts))
	if err != nil {
		s.notificationFailed(alert, res, errs.Transient(err, "notify trusted contacts"))
		return false
	}
	res.Notification = report
	if report.NotificationsFailed > 0 {
		s.log.Warn("some contacts were not notified",
			zap.String("alert_id", alert.ID.String()),
			zap.Int("notified", report.ContactsNotified),
			zap.Int("failed", report.NotificationsFailed))
	}
	return true
}

func (s *Service) notificationFailed(alert *models.Alert, res *Result, err error) {
	s.log.Error("contact notification failed", zap.String("alert_id", alert.ID.String()), zap.Error(err))
	res.NotificationError = err.Error()
	s.notice(fmt.Sprintf("Trusted contacts of courier %d could not be notified for alert %s", alert.CourierID, alert.ID), events.LevelWarning)
}

func (s *Service) alertMessage(alert *models.Alert) notification.Message {
	name := fmt.Sprintf("courier %d", alert.CourierID)
	if alert.Courier != nil && alert.Courier.Name != "" {
		name = alert.Courier.Name
	}
	body := fmt.Sprintf("%s raised a %s alert at %.6f,%.6f.", name, alert.Kind, alert.Lat, alert.Lon)
	if s.opts.TrackingURL != "" {
		body += " Follow: " + strings.TrimRight(s.opts.TrackingURL, "/") + "/alerts/" + alert.ID.String()
	}
	return notification.Message{
		Title:  "RiderGuard",
		Body:   body,
		Extras: map[string]string{"alert_id": alert.ID.String(), "kind": string(alert.Kind)},
	}
}

func toRecipients(contacts []models.TrustedContact) []notification.Contact {
	out := make([]notification.Contact, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, notification.Contact{Name: c.Name, Phone: c.Phone, PushAlias: c.PushAlias})
	}
	return out
}
