package server

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const realtimeHeartbeatInterval = 25 * time.Second

// handleEngagementStream serves the owner's live engagement feed as server-sent events.
// The optional pitchId query narrows the feed to one pitch.
func (h *httpHandler) handleEngagementStream(c *gin.Context) {
	topic := strings.TrimSpace(c.Query("pitchId"))
	if topic == "" {
		topic = AllPitches
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, topic)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "topic": topic})
	c.Writer.Flush()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(RealtimeEventEngagement, message)
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "timestamp": time.Now().UTC()})
			return true
		}
	})
}
