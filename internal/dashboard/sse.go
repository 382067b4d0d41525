package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	goalPollInterval  = 3 * time.Second
	heartbeatInterval = 15 * time.Second
)

// goalEvents streams a user's goal rows as server-sent events. The full set
// is sent on connect; afterwards only rows whose progress or completion
// changed are sent.
func (h *handlers) goalEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	userID := c.Param("user")

	goals, err := h.goals.List(ctx, userID, true)
	if err != nil {
		internalError(c, err)
		return
	}
	seen := make(map[string]GoalRow)
	rows := GoalRows(goals)
	for _, r := range rows {
		seen[r.ID] = r
	}
	writeSSE(c.Writer, "goals", rows)
	c.Writer.Flush()

	ticker := time.NewTicker(h.poll)
	heartbeat := time.NewTicker(h.beat)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": h.nowUTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			goals, err := h.goals.List(ctx, userID, true)
			if err != nil {
				if ctx.Err() == nil {
					logrus.WithError(err).WithField("user_id", userID).Warn("dashboard: poll goals")
				}
				continue
			}
			for _, r := range GoalRows(goals) {
				if prev, ok := seen[r.ID]; ok && prev == withTime(r, prev.CompletedAt) {
					continue
				}
				seen[r.ID] = r
				writeSSE(c.Writer, "goal", r)
			}
			c.Writer.Flush()
		}
	}
}

// withTime returns r with CompletedAt replaced so rows can be compared by
// value. Pointer identity differs on every reload.
func withTime(r GoalRow, at *time.Time) GoalRow {
	if (r.CompletedAt == nil) == (at == nil) && (at == nil || r.CompletedAt.Equal(*at)) {
		r.CompletedAt = at
	}
	return r
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
