package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/session"
)

const (
	refreshInterval   = 5 * time.Second
	keepAliveInterval = 30 * time.Second
)

// MonitorHandler streams the live attempt overview to admins via SSE.
type MonitorHandler struct {
	hub *session.Hub
	log zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(hub *session.Hub, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		hub: hub,
		log: log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorAttemptsSSE godoc
// GET /api/v1/admin/attempts/monitor
// Streams one row per live attempt: phase, countdown, answered and flagged
// counts. An initial snapshot is sent immediately, then a refresh every few
// seconds while the admin stays attached.
func (h *MonitorHandler) MonitorAttemptsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendOverview(c, "snapshot")

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from live monitor SSE")
			return

		case <-refreshTicker.C:
			h.sendOverview(c, "refresh")

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendOverview(c *gin.Context, eventType string) {
	rows := h.hub.Overview()

	started := 0
	submitted := 0
	for _, row := range rows {
		switch row.Phase {
		case session.PhaseStarted, session.PhaseSubmitting:
			started++
		case session.PhaseSubmitted:
			submitted++
		}
	}

	c.SSEvent("message", map[string]interface{}{
		"type": eventType,
		"stats": map[string]int{
			"total_attempts": len(rows),
			"in_progress":    started,
			"submitted":      submitted,
		},
		"attempts": rows,
	})
	c.Writer.Flush()
}
