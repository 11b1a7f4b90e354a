package hub

import "testing"

func TestRegistry_JoinLeaveLifecycle(t *testing.T) {
	r := newRegistry()

	if !r.join("room-1", "conn-a", Identity{UserID: "user-a", Username: "alice"}) {
		t.Fatal("first join should succeed")
	}
	if r.join("room-1", "conn-a", Identity{UserID: "user-a", Username: "alice"}) {
		t.Error("re-join of the same connection should report no change")
	}
	r.join("room-1", "conn-b", Identity{UserID: "user-b", Username: "bob"})

	if r.participants != 2 {
		t.Errorf("expected 2 participants, got %d", r.participants)
	}

	if !r.leave("room-1", "conn-a") {
		t.Error("leave of a member should succeed")
	}
	if r.leave("room-1", "conn-a") {
		t.Error("second leave should be a no-op")
	}
	if r.leave("no-such-room", "conn-b") {
		t.Error("leave of an unknown room should be a no-op")
	}
	if r.participants != 1 {
		t.Errorf("expected 1 participant, got %d", r.participants)
	}
}

func TestRegistry_EmptyRoomDeleted(t *testing.T) {
	r := newRegistry()
	r.join("room-1", "conn-a", Identity{UserID: "user-a", Username: "alice"})
	r.leave("room-1", "conn-a")

	if _, ok := r.rooms["room-1"]; ok {
		t.Error("room should be deleted when the last member leaves")
	}
}

func TestRegistry_MembersJoinOrder(t *testing.T) {
	r := newRegistry()
	r.join("room-1", "conn-c", Identity{UserID: "user-c", Username: "carol"})
	r.join("room-1", "conn-a", Identity{UserID: "user-a", Username: "alice"})
	r.join("room-1", "conn-b", Identity{UserID: "user-b", Username: "bob"})

	members := r.members("room-1")
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	want := []string{"conn-c", "conn-a", "conn-b"}
	for i, m := range members {
		if m.ConnID != want[i] {
			t.Errorf("member %d: want %s, got %s", i, want[i], m.ConnID)
		}
	}

	// Removing a middle member preserves the order of the rest.
	r.leave("room-1", "conn-a")
	conns := r.memberConns("room-1")
	if len(conns) != 2 || conns[0] != "conn-c" || conns[1] != "conn-b" {
		t.Errorf("unexpected order after middle leave: %v", conns)
	}
}

func TestRegistry_MembersIsACopy(t *testing.T) {
	r := newRegistry()
	r.join("room-1", "conn-a", Identity{UserID: "user-a", Username: "alice"})

	snapshot := r.members("room-1")
	r.leave("room-1", "conn-a")

	if len(snapshot) != 1 {
		t.Error("snapshot should be unaffected by later mutations")
	}
	if len(r.members("room-1")) != 0 {
		t.Error("live registry should reflect the leave")
	}
}

func TestRegistry_UnknownRoom(t *testing.T) {
	r := newRegistry()
	if members := r.members("nope"); len(members) != 0 {
		t.Errorf("unknown room should yield empty members, got %v", members)
	}
	if conns := r.memberConns("nope"); conns != nil {
		t.Errorf("unknown room should yield nil conns, got %v", conns)
	}
}

func TestSessionTable_Lifecycle(t *testing.T) {
	tbl := make(sessionTable)

	s := tbl.create("conn-a")
	if s == nil || s.connID != "conn-a" {
		t.Fatal("create should return the new row")
	}
	if tbl.create("conn-a") != s {
		t.Error("duplicate create should return the existing row")
	}

	s.roomID = "room-1"
	if got := tbl.roomOf("conn-a"); got != "room-1" {
		t.Errorf("roomOf: want room-1, got %q", got)
	}
	if got := tbl.roomOf("conn-b"); got != "" {
		t.Errorf("roomOf unknown conn: want empty, got %q", got)
	}

	if !tbl.remove("conn-a") {
		t.Error("first remove should succeed")
	}
	if tbl.remove("conn-a") {
		t.Error("second remove should report already gone")
	}
	if tbl.get("conn-a") != nil {
		t.Error("removed row should be gone")
	}
}
