// Package protocol defines the WebSocket message types and structures used for
// communication between collaboration clients and the server. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeJoinRoom       = "join-room"
	TypeLeaveRoom      = "leave-room"
	TypeChatMessage    = "chat-message"
	TypeDocumentChange = "document-change"
	TypeCursorMove     = "cursor-move"
	TypePing           = "ping"
)

// Server -> Client message types. TypeChatMessage is shared: the server echoes
// chat messages back to the whole room under the same type name.
const (
	TypeSessionCreated   = "session-created"
	TypeUserJoined       = "user-joined"
	TypeUserLeft         = "user-left"
	TypeDocumentUpdated  = "document-updated"
	TypeCursorUpdated    = "cursor-updated"
	TypeRoomParticipants = "room-participants"
	TypeError            = "error"
	TypePong             = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Shared payload fragments
// ---------------------------------------------------------------------------

// Position is a cursor location within the shared document view.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ParticipantInfo identifies one participant in a room. A user joined via
// multiple connections appears once per connection.
type ParticipantInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// JoinRoomMsg is sent by the client to enter a collaboration room. The
// identity fields come from the client's authenticated session and are
// trusted by the time they reach the dispatcher.
type JoinRoomMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// LeaveRoomMsg is sent by the client to leave its current room.
type LeaveRoomMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ChatMessageMsg is a chat message sent by the client to its current room.
type ChatMessageMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// DocumentChangeMsg carries a whole-content snapshot of the shared document
// after a local edit. The server propagates the latest snapshot to the rest
// of the room (last write wins — no merge).
type DocumentChangeMsg struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	UserID     string `json:"userId"`
}

// CursorMoveMsg reports the client's current cursor position.
type CursorMoveMsg struct {
	Type     string   `json:"type"`
	RoomID   string   `json:"roomId"`
	Position Position `json:"position"`
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server once a connection is established,
// carrying the connection's server-assigned session ID.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// UserJoinedMsg notifies the rest of a room that a new participant arrived.
type UserJoinedMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// UserLeftMsg notifies the rest of a room that a participant left or
// disconnected.
type UserLeftMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// DocumentUpdatedMsg propagates a document snapshot to the rest of the room.
type DocumentUpdatedMsg struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	UserID     string `json:"userId"`
	Timestamp  int64  `json:"timestamp"`
}

// CursorUpdatedMsg propagates a participant's cursor position to the rest of
// the room.
type CursorUpdatedMsg struct {
	Type      string   `json:"type"`
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Position  Position `json:"position"`
	Timestamp int64    `json:"timestamp"`
}

// ServerChatMsg is a chat message relayed by the server to every room member,
// including the sender (the echo doubles as a sent confirmation).
type ServerChatMsg struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// RoomParticipantsMsg is unicast to a joining connection with the room's
// current participant list, in join order. It bootstraps the new member's
// presence view.
type RoomParticipantsMsg struct {
	Type         string            `json:"type"`
	RoomID       string            `json:"roomId"`
	Participants []ParticipantInfo `json:"participants"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoinRoom:
		var m JoinRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveRoom:
		var m LeaveRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDocumentChange:
		var m DocumentChangeMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCursorMove:
		var m CursorMoveMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
