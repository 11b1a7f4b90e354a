package hub

// Identity is the authenticated user identity attached to a connection on
// join. It is supplied by an external identity provider and trusted here.
type Identity struct {
	UserID   string
	Username string
}

// Participant is one connection's membership record in a room.
type Participant struct {
	ConnID string
	Identity
}

// sessionRow binds a live connection to its identity and, once joined, its
// room. Exactly one row exists per live connection.
type sessionRow struct {
	connID   string
	identity Identity
	roomID   string // empty while unbound
}

// sessionTable is the single source of truth for "who is this connection and
// where are they". It is owned exclusively by the hub's run goroutine.
type sessionTable map[string]*sessionRow

// create inserts an empty row for a freshly accepted connection. Creating a
// row that already exists is a no-op.
func (t sessionTable) create(connID string) *sessionRow {
	if s, ok := t[connID]; ok {
		return s
	}
	s := &sessionRow{connID: connID}
	t[connID] = s
	return s
}

// get returns the row for connID, or nil if the connection is gone.
func (t sessionTable) get(connID string) *sessionRow {
	return t[connID]
}

// remove deletes the row. Returns false if it was already gone, which makes
// duplicate disconnect handling a structural no-op.
func (t sessionTable) remove(connID string) bool {
	if _, ok := t[connID]; !ok {
		return false
	}
	delete(t, connID)
	return true
}

// roomOf resolves a bare connection ID to its room, or "" if unbound.
func (t sessionTable) roomOf(connID string) string {
	if s, ok := t[connID]; ok {
		return s.roomID
	}
	return ""
}
