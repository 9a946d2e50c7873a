package alerting

import (
	"context"
	"time"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"

	"github.com/google/uuid"
)

// Detail is everything the tracking view shows for one alert.
type Detail struct {
	Alert      events.AlertPayload       `json:"alert"`
	Trajectory []models.TrajectorySample `json:"trajectory"`
	Incident   *IncidentView             `json:"incident"`
	Log        []models.LogEntry         `json:"log"`
}

func (s *Service) Detail(ctx context.Context, actor *auth.Identity, alertID uuid.UUID) (*Detail, error) {
	db := s.db.WithContext(ctx)
	alert, err := models.GetAlert(db, alertID)
	if err != nil {
		return nil, err
	}
	if err := requireViewer(actor, alert); err != nil {
		return nil, err
	}

	trajectory, err := models.ListTrajectory(db, alert.ID)
	if err != nil {
		return nil, err
	}
	d := &Detail{
		Alert:      events.NewAlertPayload(alert),
		Trajectory: trajectory,
		Log:        []models.LogEntry{},
	}

	inc, err := models.FindIncidentByAlert(db, alert.ID)
	if err != nil {
		return nil, err
	}
	if inc != nil {
		d.Incident = newIncidentView(inc)
		if d.Log, err = models.ListLogEntries(db, inc.ID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Trajectory returns the path of an alert. A zero from or to leaves that end open.
func (s *Service) Trajectory(ctx context.Context, actor *auth.Identity, alertID uuid.UUID, from, to time.Time) ([]models.TrajectorySample, error) {
	db := s.db.WithContext(ctx)
	alert, err := models.GetAlert(db, alertID)
	if err != nil {
		return nil, err
	}
	if err := requireViewer(actor, alert); err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return models.ListTrajectory(db, alert.ID)
	}
	if to.IsZero() {
		to = time.Now().Add(time.Minute)
	}
	return models.ListTrajectoryRange(db, alert.ID, from, to)
}

// ActiveAlerts lists pending and attended alerts, newest first.
func (s *Service) ActiveAlerts(ctx context.Context, actor *auth.Identity) ([]events.AlertPayload, error) {
	if err := requireOperator(actor); err != nil {
		return nil, err
	}
	alerts, err := models.ListAlertsByStatus(s.db.WithContext(ctx), models.ActiveAlertStatuses...)
	if err != nil {
		return nil, err
	}
	return toPayloads(alerts), nil
}

// History lists the calling courier's own alerts.
func (s *Service) History(ctx context.Context, actor *auth.Identity, limit int) ([]events.AlertPayload, error) {
	if err := requireCourier(actor); err != nil {
		return nil, err
	}
	alerts, err := models.ListCourierAlerts(s.db.WithContext(ctx), actor.UserID, limit)
	if err != nil {
		return nil, err
	}
	return toPayloads(alerts), nil
}

func (s *Service) ActiveCount(ctx context.Context) (int64, error) {
	return models.CountAlertsByStatus(s.db.WithContext(ctx), models.ActiveAlertStatuses...)
}

func toPayloads(alerts []models.Alert) []events.AlertPayload {
	out := make([]events.AlertPayload, 0, len(alerts))
	for i := range alerts {
		out = append(out, events.NewAlertPayload(&alerts[i]))
	}
	return out
}
