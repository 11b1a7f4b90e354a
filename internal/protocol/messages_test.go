package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid join-room message
// ---------------------------------------------------------------------------

func TestParseClientMessage_JoinRoom(t *testing.T) {
	input := []byte(`{"type":"join-room","roomId":"doc-42","userId":"u1","username":"ada"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoinRoom {
		t.Fatalf("expected type %q, got %q", TypeJoinRoom, msgType)
	}

	jm, ok := msg.(JoinRoomMsg)
	if !ok {
		t.Fatalf("expected JoinRoomMsg, got %T", msg)
	}
	if jm.RoomID != "doc-42" {
		t.Errorf("expected roomId %q, got %q", "doc-42", jm.RoomID)
	}
	if jm.UserID != "u1" || jm.Username != "ada" {
		t.Errorf("unexpected identity: %+v", jm)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a valid document-change message
// ---------------------------------------------------------------------------

func TestParseClientMessage_DocumentChange(t *testing.T) {
	input := []byte(`{"type":"document-change","roomId":"doc-42","documentId":"d9","content":"hello world","userId":"u1"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeDocumentChange {
		t.Fatalf("expected type %q, got %q", TypeDocumentChange, msgType)
	}

	dm, ok := msg.(DocumentChangeMsg)
	if !ok {
		t.Fatalf("expected DocumentChangeMsg, got %T", msg)
	}
	if dm.DocumentID != "d9" {
		t.Errorf("expected documentId %q, got %q", "d9", dm.DocumentID)
	}
	if dm.Content != "hello world" {
		t.Errorf("expected content %q, got %q", "hello world", dm.Content)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a cursor-move message with a nested position
// ---------------------------------------------------------------------------

func TestParseClientMessage_CursorMove(t *testing.T) {
	input := []byte(`{"type":"cursor-move","roomId":"doc-42","position":{"x":12.5,"y":-3},"userId":"u2","username":"bob"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeCursorMove {
		t.Fatalf("expected type %q, got %q", TypeCursorMove, msgType)
	}

	cm, ok := msg.(CursorMoveMsg)
	if !ok {
		t.Fatalf("expected CursorMoveMsg, got %T", msg)
	}
	if cm.Position.X != 12.5 || cm.Position.Y != -3 {
		t.Errorf("unexpected position: %+v", cm.Position)
	}
}

// ---------------------------------------------------------------------------
// Test: Unknown and malformed messages are rejected
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"teleport","roomId":"doc-42"}`)

	msgType, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for unknown type, got nil")
	}
	if msgType != "teleport" {
		t.Errorf("expected returned type %q, got %q", "teleport", msgType)
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	input := []byte(`{"roomId":"doc-42","userId":"u1"}`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for missing type, got nil")
	}
	if !strings.Contains(err.Error(), "type") {
		t.Errorf("expected error mentioning the type field, got %v", err)
	}
}

func TestParseClientMessage_InvalidJSON(t *testing.T) {
	input := []byte(`{"type":"join-room",`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Server-only types are not accepted from clients
// ---------------------------------------------------------------------------

func TestParseClientMessage_ServerOnlyType(t *testing.T) {
	input := []byte(`{"type":"user-joined","userId":"u1","username":"ada"}`)

	_, _, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected error for server-only type, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a room-participants server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_RoomParticipants(t *testing.T) {
	payload := RoomParticipantsMsg{
		RoomID: "doc-42",
		Participants: []ParticipantInfo{
			{UserID: "u1", Username: "ada"},
			{UserID: "u2", Username: "bob"},
		},
	}

	data, err := NewServerMessage(TypeRoomParticipants, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeRoomParticipants {
		t.Errorf("expected type %q, got %v", TypeRoomParticipants, result["type"])
	}
	if result["roomId"] != "doc-42" {
		t.Errorf("expected roomId %q, got %v", "doc-42", result["roomId"])
	}

	participants, ok := result["participants"].([]interface{})
	if !ok {
		t.Fatalf("expected participants to be an array, got %T", result["participants"])
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}

	first, ok := participants[0].(map[string]interface{})
	if !ok {
		t.Fatalf("expected participant object, got %T", participants[0])
	}
	if first["userId"] != "u1" || first["username"] != "ada" {
		t.Errorf("unexpected first participant: %v", first)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a document-updated server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_DocumentUpdated(t *testing.T) {
	payload := DocumentUpdatedMsg{
		DocumentID: "d9",
		Content:    "final draft",
		UserID:     "u1",
		Timestamp:  1700000000123,
	}

	data, err := NewServerMessage(TypeDocumentUpdated, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["type"] != TypeDocumentUpdated {
		t.Errorf("expected type %q, got %v", TypeDocumentUpdated, result["type"])
	}
	if result["content"] != "final draft" {
		t.Errorf("expected content %q, got %v", "final draft", result["content"])
	}
	if int64(result["timestamp"].(float64)) != 1700000000123 {
		t.Errorf("unexpected timestamp: %v", result["timestamp"])
	}
}

// ---------------------------------------------------------------------------
// Test: The type field always reflects the requested message type
// ---------------------------------------------------------------------------

func TestNewServerMessage_TypeInjection(t *testing.T) {
	// The payload's own Type field is empty; NewServerMessage must fill it in.
	data, err := NewServerMessage(TypeUserLeft, UserLeftMsg{UserID: "u2", Username: "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeUserLeft {
		t.Errorf("expected type %q, got %v", TypeUserLeft, result["type"])
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope round trip retains raw bytes for deferred decoding
// ---------------------------------------------------------------------------

func TestEnvelope_RetainsRaw(t *testing.T) {
	input := []byte(`{"type":"chat-message","roomId":"doc-42","message":"hi","userId":"u1","username":"ada"}`)

	var env Envelope
	if err := json.Unmarshal(input, &env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Type != TypeChatMessage {
		t.Fatalf("expected type %q, got %q", TypeChatMessage, env.Type)
	}

	var m ChatMessageMsg
	if err := json.Unmarshal(env.Raw, &m); err != nil {
		t.Fatalf("failed to decode raw payload: %v", err)
	}
	if m.Message != "hi" {
		t.Errorf("expected message %q, got %q", "hi", m.Message)
	}
}
