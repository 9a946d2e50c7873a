package session

import (
	"context"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/trajectory"
	"RiderGuard/pkg/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// locationHandler feeds location commands of a tracking session into the
// ingestion path. Bad samples are logged and the session carries on.
func (m *Manager) locationHandler(id *auth.Identity, alertID uuid.UUID) websocket.MessageHandler {
	return websocket.MessageHandlerFunc(func(ctx context.Context, conn *websocket.Connection, msg *websocket.InboundMessage) {
		if msg.Type != events.CommandLocation {
			m.log.Debug("ignoring command", zap.String("type", msg.Type), zap.String("conn_id", conn.ID))
			return
		}
		var cmd events.LocationCommand
		if err := msg.Decode(&cmd); err != nil || cmd.Lat == nil || cmd.Lon == nil {
			m.log.Warn("ignoring malformed location", zap.String("conn_id", conn.ID), zap.Error(err))
			return
		}
		_, err := m.ingest.IngestFrom(ctx, id, alertID, trajectory.Sample{
			Lat:      *cmd.Lat,
			Lon:      *cmd.Lon,
			Accuracy: cmd.Accuracy,
			Speed:    cmd.Speed,
		})
		if err != nil {
			m.log.Warn("location rejected", zap.String("conn_id", conn.ID), zap.Error(err))
		}
	})
}

func (m *Manager) monitoringHandler() websocket.MessageHandler {
	return websocket.MessageHandlerFunc(func(ctx context.Context, conn *websocket.Connection, msg *websocket.InboundMessage) {
		if msg.Type != events.CommandSystemStatusRequest {
			m.log.Debug("ignoring command", zap.String("type", msg.Type), zap.String("conn_id", conn.ID))
			return
		}
		n, err := m.status.ActiveCount(ctx)
		if err != nil {
			m.log.Error("active alert count failed", zap.Error(err))
			return
		}
		if err := conn.SendJSON(events.SystemStatus(n)); err != nil {
			m.log.Debug("system status not queued", zap.String("conn_id", conn.ID), zap.Error(err))
		}
	})
}
