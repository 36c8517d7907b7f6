package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionFlag   Action = "flag"
	ActionGoto   Action = "goto"
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// Request is the single client message shape; unused fields are ignored
// per action.
type Request struct {
	Action Action `json:"action"`
	QID    string `json:"q_id,omitempty"`
	Value  string `json:"value,omitempty"`
	Index  int    `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────
//
// Controller events (started, time_sync, submitted, submit_failed) are
// forwarded verbatim from the session package; the types below cover the
// ws layer's own acknowledgements.

type Event string

const (
	EventSaved    Event = "saved"
	EventFlagged  Event = "flagged"
	EventPosition Event = "position"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// AckResponse acknowledges an answer/flag/goto action.
type AckResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id,omitempty"`
	Index int    `json:"index,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
