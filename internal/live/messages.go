package live

import (
	"encoding/json"
	"time"

	"github.com/matthewbaird/canvas/internal/binding"
	"github.com/matthewbaird/canvas/internal/form"
)

// Client message types.
const (
	MsgChangeProperty = "changeProperty"
	MsgChangeStyle    = "changeStyle"
	MsgDemo           = "demo"
	MsgForm           = "form"
	MsgTree           = "tree"
	MsgSave           = "save"
	MsgPing           = "ping"
)

// Server message types.
const (
	MsgSession = "session"
	MsgAck     = "ack"
	MsgData    = "data"
	MsgSaved   = "saved"
	MsgPong    = "pong"
	MsgError   = "error"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id"` // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// ChangeData is the payload for "changeProperty" and "changeStyle".
type ChangeData struct {
	NodeID string   `json:"nodeId"`
	Path   []string `json:"path"`
	Value  any      `json:"value"`
}

// NodeRef is the payload for "demo" and "form".
type NodeRef struct {
	NodeID string `json:"nodeId"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// SessionData is sent once after the connection is accepted.
type SessionData struct {
	SessionID  string     `json:"sessionId"`
	DocumentID string     `json:"documentId"`
	Name       string     `json:"name"`
	Nodes      []NodeInfo `json:"nodes"`
}

// NodeInfo describes one node of the live tree in depth-first order.
type NodeInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
	Depth  int    `json:"depth"`
	Source string `json:"source,omitempty"`
}

// AckData answers a change with the node's current values.
type AckData struct {
	NodeID  string         `json:"nodeId"`
	Matched bool           `json:"matched"`
	Values  map[string]any `json:"values,omitempty"`
}

// FormData carries the editor forms of a node.
type FormData struct {
	NodeID     string      `json:"nodeId"`
	Properties form.Schema `json:"properties"`
	Style      form.Schema `json:"style"`
}

// DataMessage carries one binding delivery.
type DataMessage struct {
	NodeID    string         `json:"nodeId"`
	Status    binding.Status `json:"status"`
	Data      any            `json:"data,omitempty"`
	AfterData any            `json:"afterData,omitempty"`
	Origin    binding.Origin `json:"origin,omitempty"`
}

// SavedData confirms a save.
type SavedData struct {
	DocumentID string    `json:"documentId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
