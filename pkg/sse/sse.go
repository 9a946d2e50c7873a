package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"RiderGuard/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Streamer serves hub topics as a Server-Sent Events stream for read-only
// dashboards that cannot hold a websocket open.
type Streamer struct {
	hub      *websocket.Hub
	interval time.Duration
	retryMs  int
}

func NewStreamer(hub *websocket.Hub, interval time.Duration) *Streamer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Streamer{hub: hub, interval: interval, retryMs: 5000}
}

// Serve subscribes a new hub connection to topics and copies every event
// to the response until the client goes away or the hub kicks it.
func (s *Streamer) Serve(c *gin.Context, userID, role string, topics ...string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	conn := websocket.NewConnection(s.hub, nil, userID, role, nil)
	if err := s.hub.Attach(conn, topics...); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer s.hub.Unregister(conn)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", s.retryMs)
	flusher.Flush()

	ping := time.NewTicker(s.interval)
	defer ping.Stop()

	for {
		select {
		case <-conn.Done():
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case msg, ok := <-conn.Send:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(formatEvent(msg)); err != nil {
				logrus.Debugf("sse write to %s failed: %v", conn.ID, err)
				return
			}
			flusher.Flush()
		}
	}
}

// formatEvent names the SSE event after the payload's type field.
func formatEvent(data []byte) []byte {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err == nil && head.Type != "" {
		return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", head.Type, data))
	}
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}
