package handlers

import (
	"strconv"

	"RiderGuard/internal/auth"
	"RiderGuard/internal/events"
	"RiderGuard/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// feed upgrades to a websocket session on f. Authorization runs before the
// upgrade so a refused caller gets a plain JSON error.
func (h *Handlers) feed(f session.Feed) gin.HandlerFunc {
	return func(c *gin.Context) {
		var alertID uuid.UUID
		if f == session.FeedLocation {
			id, err := pathUUID(c)
			if err != nil {
				h.fail(c, err)
				return
			}
			alertID = id
		}
		id := auth.Current(c)
		plan, err := h.Sessions.Authorize(c.Request.Context(), id, f, alertID)
		if err != nil {
			h.fail(c, err)
			return
		}
		if _, err := h.Sessions.Serve(c.Writer, c.Request, id, f, plan); err != nil {
			// the upgrader has already answered
			h.log.Debug("websocket upgrade failed", zap.String("feed", string(f)), zap.Error(err))
		}
	}
}

func (h *Handlers) handleMonitoringStream(c *gin.Context) {
	id := auth.Current(c)
	h.Streamer.Serve(c, strconv.FormatUint(uint64(id.UserID), 10), id.Role, events.TopicMonitoring)
}
