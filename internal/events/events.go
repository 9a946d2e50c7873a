// Package events defines the topics of the dashboard feeds and the JSON
// payloads published on them.
package events

import (
	"time"

	"RiderGuard/internal/models"

	"github.com/google/uuid"
)

const (
	// TopicAlerts is the operator console feed.
	TopicAlerts = "alerts"
	// TopicMonitoring carries alerts, courier status and notices.
	TopicMonitoring = "monitoring"

	locationTopicPrefix = "location_"
)

// LocationTopic names the feed that tracks one alert.
func LocationTopic(alertID uuid.UUID) string {
	return locationTopicPrefix + alertID.String()
}

// Outbound types.
const (
	TypeNewAlert       = "new_alert"
	TypeAlertUpdated   = "alert_updated"
	TypeLocationUpdate = "location_update"
	TypeNotification   = "notification"
	TypeCourierStatus  = "courier_status"
	TypeSystemStatus   = "system_status"
)

// Inbound command types.
const (
	CommandLocation            = "location"
	CommandSystemStatusRequest = "system_status_request"
)

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelDanger  = "danger"
)

// Publisher is the part of the event bus the core depends on.
type Publisher interface {
	Publish(topic string, payload interface{}) (int, error)
}

type CourierRef struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// AlertPayload is the wire form of an alert.
type AlertPayload struct {
	ID         uuid.UUID              `json:"id"`
	Courier    CourierRef             `json:"courier"`
	Kind       models.AlertKind       `json:"kind"`
	Status     models.AlertStatus     `json:"status"`
	Lat        float64                `json:"lat"`
	Lon        float64                `json:"lon"`
	Battery    *int                   `json:"battery"`
	CreatedAt  time.Time              `json:"created_at"`
	SensorData map[string]interface{} `json:"sensor_data"`
}

func NewAlertPayload(a *models.Alert) AlertPayload {
	p := AlertPayload{
		ID:         a.ID,
		Courier:    CourierRef{ID: a.CourierID},
		Kind:       a.Kind,
		Status:     a.Status,
		Lat:        a.Lat,
		Lon:        a.Lon,
		Battery:    a.Battery,
		CreatedAt:  a.CreatedAt.UTC(),
		SensorData: a.SensorData,
	}
	if p.SensorData == nil {
		p.SensorData = map[string]interface{}{}
	}
	if a.Courier != nil {
		p.Courier.Name = a.Courier.Name
		p.Courier.Phone = a.Courier.Phone
	}
	return p
}

type AlertEvent struct {
	Type  string       `json:"type"`
	Alert AlertPayload `json:"alert"`
}

func NewAlert(a *models.Alert) AlertEvent {
	return AlertEvent{Type: TypeNewAlert, Alert: NewAlertPayload(a)}
}

func AlertUpdated(a *models.Alert) AlertEvent {
	return AlertEvent{Type: TypeAlertUpdated, Alert: NewAlertPayload(a)}
}

type LocationEvent struct {
	Type      string    `json:"type"`
	AlertID   uuid.UUID `json:"alert_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  *float64  `json:"accuracy"`
	Speed     *float64  `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

func LocationUpdate(s *models.TrajectorySample) LocationEvent {
	return LocationEvent{
		Type:      TypeLocationUpdate,
		AlertID:   s.AlertID,
		Lat:       s.Lat,
		Lon:       s.Lon,
		Accuracy:  s.Accuracy,
		Speed:     s.Speed,
		Timestamp: s.Timestamp.UTC(),
	}
}

type NotificationEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Level   string `json:"level"`
}

func Notification(message, level string) NotificationEvent {
	if level == "" {
		level = LevelInfo
	}
	return NotificationEvent{Type: TypeNotification, Message: message, Level: level}
}

type CourierStatusEvent struct {
	Type      string               `json:"type"`
	CourierID uint                 `json:"courier_id"`
	Status    models.CourierStatus `json:"status"`
	Lat       *float64             `json:"lat,omitempty"`
	Lon       *float64             `json:"lon,omitempty"`
	Battery   *int                 `json:"battery,omitempty"`
}

func CourierStatus(p *models.CourierProfile) CourierStatusEvent {
	return CourierStatusEvent{
		Type:      TypeCourierStatus,
		CourierID: p.CourierID,
		Status:    p.Status,
		Lat:       p.LastLat,
		Lon:       p.LastLon,
		Battery:   p.Battery,
	}
}

type SystemStatusEvent struct {
	Type             string    `json:"type"`
	ActiveAlertCount int64     `json:"active_alert_count"`
	Timestamp        time.Time `json:"timestamp"`
}

func SystemStatus(active int64) SystemStatusEvent {
	return SystemStatusEvent{Type: TypeSystemStatus, ActiveAlertCount: active, Timestamp: time.Now().UTC()}
}

// LocationCommand is sent by a courier device while an alert is active.
type LocationCommand struct {
	Type     string   `json:"type"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Accuracy *float64 `json:"accuracy"`
	Speed    *float64 `json:"speed"`
}
