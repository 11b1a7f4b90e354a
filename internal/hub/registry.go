package hub

// room holds one collaboration room's participant set. The order slice keeps
// join order so participant snapshots are deterministic.
type room struct {
	id      string
	order   []string            // connIDs in join order
	members map[string]Identity // connID -> identity
}

// registry maps room IDs to their participant sets. Rooms are created lazily
// on first join and deleted when the last participant leaves. Like the
// session table it is owned exclusively by the hub's run goroutine.
type registry struct {
	rooms        map[string]*room
	participants int // total members across all rooms
}

func newRegistry() *registry {
	return &registry{rooms: make(map[string]*room)}
}

// join inserts the participant into the room's set, creating the room if
// absent. Re-joining the same room with the same connection is a no-op;
// join returns false in that case so the caller can skip the arrival
// broadcast while still answering with the member list.
func (r *registry) join(roomID, connID string, id Identity) bool {
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{id: roomID, members: make(map[string]Identity)}
		r.rooms[roomID] = rm
	}
	if _, member := rm.members[connID]; member {
		return false
	}
	rm.members[connID] = id
	rm.order = append(rm.order, connID)
	r.participants++
	return true
}

// leave removes the matching participant; if the room becomes empty the room
// entry is deleted. Leaving a room the connection is not a member of, or an
// unknown room, is a no-op — "not present" is a valid steady state.
func (r *registry) leave(roomID, connID string) bool {
	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, member := rm.members[connID]; !member {
		return false
	}
	delete(rm.members, connID)
	for i, c := range rm.order {
		if c == connID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	r.participants--
	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// members returns a snapshot of the room's participants in join order. The
// returned slice is a copy, never a live reference, so callers iterating it
// can never observe a registry mutation mid-flight. Unknown rooms yield an
// empty slice.
func (r *registry) members(roomID string) []Participant {
	rm, ok := r.rooms[roomID]
	if !ok {
		return []Participant{}
	}
	out := make([]Participant, 0, len(rm.order))
	for _, connID := range rm.order {
		out = append(out, Participant{ConnID: connID, Identity: rm.members[connID]})
	}
	return out
}

// memberConns returns a snapshot of the room's member connection IDs in join
// order. Used by the broadcast router to resolve the target set.
func (r *registry) memberConns(roomID string) []string {
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, len(rm.order))
	copy(out, rm.order)
	return out
}
