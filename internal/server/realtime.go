package server

import (
	"io"
	"time"

	"github.com/draxon/draxon-bots/internal/events"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHeartbeat = 25 * time.Second

// handleEventStream relays engine events as server-sent events. The optional
// guild_id query parameter narrows the stream to one guild.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	guildID := c.Query("guild_id")
	if guildID == "" {
		guildID = events.AllGuilds
	}

	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx, guildID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	logger := h.logger.With(zap.String("operator", operatorSubject(c)), zap.String("guild_id", guildID))
	logger.Info("event stream opened")
	defer logger.Info("event stream closed")

	// Headers go out before the first event so clients see the stream open.
	c.SSEvent(events.EventHeartbeat, gin.H{"timestamp": time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, message)
			return true
		case now := <-ticker.C:
			c.SSEvent(events.EventHeartbeat, gin.H{"timestamp": now.UTC()})
			return true
		}
	})
}
