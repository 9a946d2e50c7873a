package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck pings the database and reports hub load.
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}

	body := gin.H{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if h.Hub != nil {
		body["connections"] = h.Hub.GetConnectionCount()
	}
	if h.Alerts != nil {
		if n, err := h.Alerts.ActiveCount(c.Request.Context()); err == nil {
			body["active_alerts"] = n
		}
	}
	c.JSON(http.StatusOK, body)
}
