// Package alerting runs the lifecycle of alerts and of the incidents
// operators open to handle them.
//
// Every transition of one alert holds that alert's lock and runs in a
// single transaction. Events leave the process only after commit.
package alerting

import (
	"context"
	"time"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	"RiderGuard/internal/presence"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier is the contact notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, msg notification.Message, contacts []notification.Contact) (*notification.Report, error)
}

// Observer is told about every alert event after it is published.
type Observer interface {
	OnAlertEvent(eventType, kind, status string)
}

type Options struct {
	NotifyTimeout time.Duration
	// base url of the tracking view, linked from notifications
	TrackingURL string
}

type Service struct {
	db       *gorm.DB
	bus      events.Publisher
	presence *presence.Projection
	notifier Notifier
	locks    *keyedMutex
	opts     Options
	observer Observer
	log      *zap.Logger
}

// NewService wires the state machine. notifier may be nil.
func NewService(db *gorm.DB, bus events.Publisher, proj *presence.Projection, notifier Notifier, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	return &Service{
		db:       db,
		bus:      bus,
		presence: proj,
		notifier: notifier,
		locks:    newKeyedMutex(),
		opts:     opts,
		log:      log.Named("alerting"),
	}
}

// SetObserver installs o. Call before serving traffic.
func (s *Service) SetObserver(o Observer) { s.observer = o }

// Result is the outcome of a state changing operation.
type Result struct {
	Alert    *events.AlertPayload `json:"alert,omitempty"`
	Incident *IncidentView        `json:"incident,omitempty"`
	// false when the call was an accepted no-op
	Changed   bool   `json:"changed"`
	MessageID string `json:"-"`
	Reason    string `json:"message"`

	Notification      *notification.Report `json:"notification,omitempty"`
	NotificationError string               `json:"notification_error,omitempty"`
}

// IncidentView adds the response time in seconds to an incident.
type IncidentView struct {
	*models.Incident
	ResponseSeconds *float64 `json:"response_seconds"`
}

func newIncidentView(inc *models.Incident) *IncidentView {
	if inc == nil {
		return nil
	}
	v := &IncidentView{Incident: inc}
	if d := inc.ResponseDuration(); d != nil {
		secs := d.Seconds()
		v.ResponseSeconds = &secs
	}
	return v
}

func newResult(msgID string, changed bool, alert *models.Alert, inc *models.Incident) *Result {
	r := &Result{Changed: changed, MessageID: msgID, Reason: Reason(msgID), Incident: newIncidentView(inc)}
	if alert != nil {
		p := events.NewAlertPayload(alert)
		r.Alert = &p
	}
	return r
}

// LockAlert holds the lock every transition of alertID runs under.
func (s *Service) LockAlert(alertID uuid.UUID) func() {
	return s.locks.Lock(alertID.String())
}

// transition loads the alert under its lock inside a transaction.
func (s *Service) transition(ctx context.Context, alertID uuid.UUID, fn func(tx *gorm.DB, alert *models.Alert) error) error {
	unlock := s.LockAlert(alertID)
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alert, err := models.GetAlert(tx, alertID)
		if err != nil {
			return err
		}
		return fn(tx, alert)
	})
}

// broadcast sends an alert event to the console and monitoring feeds.
func (s *Service) broadcast(ev events.AlertEvent) {
	for _, topic := range []string{events.TopicAlerts, events.TopicMonitoring} {
		if _, err := s.bus.Publish(topic, ev); err != nil {
			s.log.Warn("publish failed", zap.String("topic", topic), zap.String("type", ev.Type), zap.Error(err))
		}
	}
	if s.observer != nil {
		s.observer.OnAlertEvent(ev.Type, string(ev.Alert.Kind), string(ev.Alert.Status))
	}
}

func (s *Service) notice(message, level string) {
	if _, err := s.bus.Publish(events.TopicMonitoring, events.Notification(message, level)); err != nil {
		s.log.Warn("publish notice failed", zap.Error(err))
	}
}

// Notice publishes a free-form message on the monitoring feed.
func (s *Service) Notice(actor *auth.Identity, message, level string) error {
	if err := requireOperator(actor); err != nil {
		return err
	}
	if message == "" {
		return errs.Validation("message is required")
	}
	switch level {
	case "", events.LevelInfo, events.LevelWarning, events.LevelDanger:
	default:
		return errs.Validation("unknown notice level %q", level)
	}
	s.notice(message, level)
	return nil
}
