// Package session opens dashboard and device sessions on the event bus
// and dispatches the commands clients send over them.
package session

import (
	"context"
	"net/http"
	"strconv"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/models"
	"RiderGuard/internal/trajectory"
	errs "RiderGuard/pkg/errors"
	"RiderGuard/pkg/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Feed string

const (
	FeedAlerts     Feed = "alerts"
	FeedMonitoring Feed = "monitoring"
	FeedLocation   Feed = "location"
)

// StatusSource answers system_status_request.
type StatusSource interface {
	ActiveCount(ctx context.Context) (int64, error)
}

type Manager struct {
	hub    *websocket.Hub
	db     *gorm.DB
	ingest *trajectory.Ingestor
	status StatusSource
	log    *zap.Logger
}

func NewManager(hub *websocket.Hub, db *gorm.DB, ingest *trajectory.Ingestor, status StatusSource, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{hub: hub, db: db, ingest: ingest, status: status, log: log.Named("session")}
}

// Plan is what an authorized session joins and how its commands are
// handled.
type Plan struct {
	Topics  []string
	Handler websocket.MessageHandler
}

// Authorize decides whether id may open feed. The alert feeds need an
// operator; a location feed is open to operators and to the courier who
// raised the alert.
func (m *Manager) Authorize(ctx context.Context, id *auth.Identity, feed Feed, alertID uuid.UUID) (*Plan, error) {
	if id == nil {
		return nil, errs.Unauthorized("authentication required")
	}

	switch feed {
	case FeedAlerts:
		if !auth.IsOperator(id) {
			return nil, errs.Unauthorized("alert feed is reserved to operators")
		}
		return &Plan{Topics: []string{events.TopicAlerts}}, nil

	case FeedMonitoring:
		if !auth.IsOperator(id) {
			return nil, errs.Unauthorized("monitoring feed is reserved to operators")
		}
		return &Plan{Topics: []string{events.TopicMonitoring}, Handler: m.monitoringHandler()}, nil

	case FeedLocation:
		alert, err := models.GetAlert(m.db.WithContext(ctx), alertID)
		if err != nil {
			return nil, err
		}
		if !auth.IsOperator(id) && !auth.OwnsAlert(id, alert) {
			return nil, errs.Unauthorized("not allowed to track alert %s", alertID)
		}
		return &Plan{
			Topics:  []string{events.LocationTopic(alert.ID)},
			Handler: m.locationHandler(id, alert.ID),
		}, nil
	}
	return nil, errs.Validation("unknown feed %q", feed)
}

// Serve upgrades the request and joins the topics of plan, which must come
// from Authorize for the same caller.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request, id *auth.Identity, feed Feed, plan *Plan) (*websocket.Connection, error) {
	conn, err := websocket.HandleWebSocket(m.hub, w, r, websocket.SessionOptions{
		UserID:   strconv.FormatUint(uint64(id.UserID), 10),
		Role:     id.Role,
		Topics:   plan.Topics,
		Handler:  plan.Handler,
		Metadata: map[string]interface{}{"feed": string(feed)},
	})
	if err != nil {
		return nil, err
	}
	m.log.Debug("session joined",
		zap.String("conn_id", conn.ID), zap.String("feed", string(feed)), zap.Uint("user_id", id.UserID))
	return conn, nil
}
