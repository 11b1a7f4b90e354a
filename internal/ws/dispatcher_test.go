package ws

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/syncspace/collab-app/internal/protocol"
)

// dispatchConn returns a Connection whose peer end can be read with
// readServerMessage.
func dispatchConn(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return newConnection("conn-1", server, 1, 4), client
}

// readServerMessage reads one server text frame from the client side and
// decodes it as JSON.
func readServerMessage(t *testing.T, client net.Conn) map[string]interface{} {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := wsutil.ReadServerText(client)
	if err != nil {
		t.Fatalf("failed to read server frame: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON frame: %v", err)
	}
	return m
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	d := NewMessageDispatcher(nil)
	conn, _ := dispatchConn(t)

	var got protocol.JoinRoomMsg
	d.Register(protocol.TypeJoinRoom, func(c *Connection, msg interface{}) {
		got = msg.(protocol.JoinRoomMsg)
	})

	raw := []byte(`{"type":"join-room","roomId":"room-1","userId":"user-a","username":"alice"}`)
	d.Dispatch(conn, raw)

	if got.RoomID != "room-1" || got.UserID != "user-a" {
		t.Errorf("handler received wrong message: %+v", got)
	}
}

func TestDispatch_PingAnsweredInternally(t *testing.T) {
	d := NewMessageDispatcher(nil)
	conn, client := dispatchConn(t)
	before := conn.LastActivity()
	time.Sleep(time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(conn, []byte(`{"type":"ping"}`))
	}()

	resp := readServerMessage(t, client)
	<-done

	if resp["type"] != protocol.TypePong {
		t.Errorf("expected pong, got %v", resp["type"])
	}
	if !conn.LastActivity().After(before) {
		t.Error("ping should refresh the activity timestamp")
	}
}

func TestDispatch_ParseErrorReplies(t *testing.T) {
	d := NewMessageDispatcher(nil)
	conn, client := dispatchConn(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(conn, []byte(`{not json`))
	}()

	resp := readServerMessage(t, client)
	<-done

	if resp["type"] != protocol.TypeError {
		t.Fatalf("expected error reply, got %v", resp["type"])
	}
	if resp["code"] != "parse_error" {
		t.Errorf("expected parse_error code, got %v", resp["code"])
	}
}

func TestDispatch_UnregisteredTypeReplies(t *testing.T) {
	d := NewMessageDispatcher(nil)
	conn, client := dispatchConn(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(conn, []byte(`{"type":"join-room","roomId":"room-1"}`))
	}()

	resp := readServerMessage(t, client)
	<-done

	if resp["type"] != protocol.TypeError {
		t.Fatalf("expected error reply, got %v", resp["type"])
	}
	if resp["code"] != "unsupported_type" {
		t.Errorf("expected unsupported_type code, got %v", resp["code"])
	}
}
