package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RiderGuard/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEvent(t *testing.T) {
	assert.Equal(t, "event: system_status\ndata: {\"type\":\"system_status\"}\n\n",
		string(formatEvent([]byte(`{"type":"system_status"}`))))
	assert.Equal(t, "data: [1,2]\n\n", string(formatEvent([]byte(`[1,2]`))))
}

func TestServeStreamsTopic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub(nil)
	defer hub.Close()

	router := gin.New()
	streamer := NewStreamer(hub, time.Minute)
	router.GET("/sse/monitoring", func(c *gin.Context) {
		streamer.Serve(c, "op-1", "operator", "monitoring")
	})
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sse/monitoring", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.GetTopicSubscribers("monitoring") == 1 }, time.Second, 10*time.Millisecond)
	_, err = hub.Publish("monitoring", map[string]interface{}{"type": "courier_status", "courier_id": 3})
	require.NoError(t, err)

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: courier_status", lines[0])
	assert.Contains(t, lines[1], `"courier_id":3`)

	cancel()
	require.Eventually(t, func() bool { return hub.GetConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
