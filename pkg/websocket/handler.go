package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler exposes hub statistics over HTTP. Session endpoints live with
// the application because they need authentication.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes mounts the stats and health endpoints on r.
func RegisterRoutes(r gin.IRoutes, handler *Handler) {
	r.GET(RouteWebSocketStats, handler.GetStats)
	r.GET(RouteWebSocketHealth, handler.HealthCheck)
}

// GetStats reports connection and topic counts with the active config.
func (h *Handler) GetStats(c *gin.Context) {
	topics := h.hub.Topics()
	perTopic := make(map[string]int, len(topics))
	for _, t := range topics {
		perTopic[t] = h.hub.GetTopicSubscribers(t)
	}
	c.JSON(http.StatusOK, gin.H{
		"total_connections": h.hub.GetConnectionCount(),
		"topics":            perTopic,
		"config":            GetConfigSummary(h.hub.config),
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if h.hub.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"error":   "hub closed",
			"details": h.hub.ctx.Err().Error(),
		})
		return
	}

	totalConnections := h.hub.GetConnectionCount()
	maxConnections := h.hub.config.MaxConnections

	status := "healthy"
	if totalConnections >= maxConnections*9/10 {
		status = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": totalConnections,
		"max_connections":   maxConnections,
		"connection_usage":  float64(totalConnections) / float64(maxConnections) * 100,
		"hub_running":       true,
		"timestamp":         time.Now().Unix(),
	})
}
