package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/momotalk/internal/models"
	"github.com/zulandar/momotalk/internal/store"
)

// handleMessageEvents streams messages added to a conversation as
// server-sent events. Each new message is one "message" event; a
// "heartbeat" event is sent every 15s.
func handleMessageEvents(s *store.Store, poll time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		if _, err := s.FindConversation(ctx, id); err != nil {
			writeError(c, err)
			return
		}
		// Only messages stored after the stream opened are sent.
		existing, err := s.ListMessages(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		lastID := maxID(existing)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"conversation": id})
		c.Writer.Flush()

		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				msgs, err := s.ListMessages(ctx, id)
				if err != nil {
					return
				}
				sent := false
				for _, m := range msgs {
					if m.ID > lastID {
						writeSSE(c.Writer, "message", m)
						sent = true
					}
				}
				if sent {
					lastID = maxID(msgs)
					c.Writer.Flush()
				}
			}
		}
	}
}

func maxID(msgs []models.Message) uint {
	var id uint
	for _, m := range msgs {
		if m.ID > id {
			id = m.ID
		}
	}
	return id
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
