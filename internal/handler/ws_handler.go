package handler

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/middleware"
	"github.com/sangammgr88/exam-portal-gateway/internal/model"
	"github.com/sangammgr88/exam-portal-gateway/internal/session"
	ws "github.com/sangammgr88/exam-portal-gateway/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the live attempt channel: answer/flag/goto actions in,
// countdown and lifecycle events out, over one WebSocket.
type WSHandler struct {
	hub      *session.Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *session.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsConn serializes writes from the ack path and the event-forward
// goroutine; gorilla conns do not allow concurrent writers.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteTyped(w.conn, v)
}

func (w *wsConn) writeError(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws.WriteError(w.conn, msg)
}

// AttemptLiveStream godoc
// WS /ws/v1/attempts/:attempt_id/live
// Upgrades to WebSocket. The server pushes a time_sync event every second
// plus started/submitted/submit_failed lifecycle events; the client sends
// answer, flag, goto, submit and ping actions.
func (h *WSHandler) AttemptLiveStream(c *gin.Context) {
	cred := middleware.GetCredential(c)

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	att, err := h.hub.Get(attemptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown attempt"})
		return
	}
	if att.Ctrl.Credential().StudentID != cred.StudentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your attempt"})
		return
	}

	events, unsubscribe, err := h.hub.Subscribe(attemptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown attempt"})
		return
	}
	defer unsubscribe()

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer rawConn.Close()

	conn := &wsConn{conn: rawConn}

	wsLog := h.log.With().
		Str("attempt_id", attemptID.String()).
		Str("student_id", cred.StudentID).
		Logger()
	wsLog.Info().Msg("Student connected")

	done := make(chan struct{})
	defer close(done)

	// Forward controller events until the socket or subscription goes away.
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := conn.write(ev); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg ws.Request
		if err := ws.ReadJSON(rawConn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, att, &msg)
		case ws.ActionFlag:
			h.handleFlag(conn, att, &msg)
		case ws.ActionGoto:
			h.handleGoto(conn, att, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(c, conn, wsLog, att)
		case ws.ActionPing:
			conn.write(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.writeError("unknown action: " + string(msg.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(conn *wsConn, att *session.Attempt, msg *ws.Request) {
	if msg.QID == "" {
		conn.writeError("q_id is required")
		return
	}
	if err := h.hub.RecordAnswer(att.ID, msg.QID, msg.Value); err != nil {
		conn.writeError(err.Error())
		return
	}
	conn.write(ws.AckResponse{Event: ws.EventSaved, QID: msg.QID})
}

func (h *WSHandler) handleFlag(conn *wsConn, att *session.Attempt, msg *ws.Request) {
	if msg.QID == "" {
		conn.writeError("q_id is required")
		return
	}
	if err := h.hub.ToggleFlag(att.ID, msg.QID); err != nil {
		conn.writeError(err.Error())
		return
	}
	conn.write(ws.AckResponse{Event: ws.EventFlagged, QID: msg.QID})
}

func (h *WSHandler) handleGoto(conn *wsConn, att *session.Attempt, msg *ws.Request) {
	att.Ctrl.NavigateTo(msg.Index)
	conn.write(ws.AckResponse{Event: ws.EventPosition, Index: att.Ctrl.Snapshot().CurrentIndex})
}

// handleSubmit runs the manual submission path. The submitted event with
// the result reaches the client through the subscription; only failures
// need an explicit error frame here.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *wsConn, wsLog zerolog.Logger, att *session.Attempt) {
	if _, err := h.hub.Submit(c.Request.Context(), att.ID, model.TriggerManual); err != nil {
		wsLog.Warn().Err(err).Msg("Submission over WebSocket failed")
		conn.writeError(err.Error())
	}
}
