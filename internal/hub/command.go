package hub

import (
	"context"
	"encoding/json"
	"log"

	"github.com/syncspace/collab-app/internal/document"
	"github.com/syncspace/collab-app/internal/metrics"
	"github.com/syncspace/collab-app/internal/protocol"
)

// command is the tagged union of everything the hub can be told to do. Each
// variant maps to exactly one state-machine transition and is applied on the
// hub's run goroutine, which makes join/leave/broadcast linearizable with
// respect to disconnect without any lock discipline at the call sites.
type command interface {
	apply(h *Hub)
}

type connectCmd struct {
	connID string
}

type joinCmd struct {
	connID string
	roomID string
	id     Identity
}

type leaveCmd struct {
	connID string
}

type chatCmd struct {
	connID  string
	message string
}

type docChangeCmd struct {
	connID     string
	documentID string
	content    string
}

type cursorCmd struct {
	connID string
	pos    protocol.Position
}

type disconnectCmd struct {
	connID string
}

// flushCmd is scheduled by a debounce timer to emit the pending document
// update for a connection. The seq guard discards flushes from timers that
// were superseded or cancelled after firing.
type flushCmd struct {
	connID string
	seq    uint64
}

// membersCmd answers a synchronous snapshot query. Because it travels the
// same channel as mutations, the reply reflects every command submitted
// before it.
type membersCmd struct {
	roomID string
	reply  chan []Participant
}

// apply for connectCmd: create an empty session row (roomID unset).
func (c connectCmd) apply(h *Hub) {
	h.sessions.create(c.connID)
}

// apply for joinCmd: bind the identity, switch rooms if needed, answer with
// the member list, and announce the arrival to the rest of the room.
func (c joinCmd) apply(h *Hub) {
	s := h.sessions.get(c.connID)
	if s == nil {
		log.Printf("hub: join-room from unknown conn=%s dropped", c.connID)
		metrics.CommandsDroppedTotal.WithLabelValues("unbound").Inc()
		return
	}
	s.identity = c.id

	// Duplicate join from a flaky client: no membership change, no arrival
	// broadcast, but still answer with the current member list.
	if s.roomID == c.roomID {
		h.sendParticipants(c.connID, c.roomID)
		return
	}

	// A connection is a member of at most one room: joining a new room
	// implicitly leaves the old one first.
	if s.roomID != "" {
		h.leaveRoom(s)
	}

	h.registry.join(c.roomID, c.connID, c.id)
	s.roomID = c.roomID

	h.mirrorPresence(c.connID, func(ctx context.Context) error {
		return h.presence.SetMembership(ctx, c.connID, c.id.UserID, c.id.Username, c.roomID)
	})

	h.sendParticipants(c.connID, c.roomID)

	data, err := protocol.NewServerMessage(protocol.TypeUserJoined, protocol.UserJoinedMsg{
		UserID:   c.id.UserID,
		Username: c.id.Username,
	})
	if err != nil {
		log.Printf("hub: failed to build user-joined for conn=%s: %v", c.connID, err)
		return
	}
	h.broadcast(c.roomID, protocol.TypeUserJoined, data, c.connID)

	log.Printf("hub: user %s joined room %s conn=%s (members=%d)",
		c.id.Username, c.roomID, c.connID, len(h.registry.memberConns(c.roomID)))
}

// apply for leaveCmd: leave the current room if any. Leaving while unbound
// is a no-op.
func (c leaveCmd) apply(h *Hub) {
	s := h.sessions.get(c.connID)
	if s == nil || s.roomID == "" {
		return
	}
	roomID := s.roomID
	h.leaveRoom(s)
	log.Printf("hub: user %s left room %s conn=%s", s.identity.Username, roomID, c.connID)
}

// apply for chatCmd: stamp and broadcast to the whole room, sender included
// (the echo is the client's sent confirmation).
func (c chatCmd) apply(h *Hub) {
	s := h.sessions.get(c.connID)
	if s == nil || s.roomID == "" {
		log.Printf("hub: chat-message from unbound conn=%s dropped", c.connID)
		metrics.CommandsDroppedTotal.WithLabelValues("unbound").Inc()
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeChatMessage, protocol.ServerChatMsg{
		UserID:    s.identity.UserID,
		Username:  s.identity.Username,
		Message:   c.message,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		log.Printf("hub: failed to build chat-message for conn=%s: %v", c.connID, err)
		return
	}
	h.broadcast(s.roomID, protocol.TypeChatMessage, data, "")
}

// apply for cursorCmd: stamp and broadcast to the rest of the room.
func (c cursorCmd) apply(h *Hub) {
	s := h.sessions.get(c.connID)
	if s == nil || s.roomID == "" {
		metrics.CommandsDroppedTotal.WithLabelValues("unbound").Inc()
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeCursorUpdated, protocol.CursorUpdatedMsg{
		UserID:    s.identity.UserID,
		Username:  s.identity.Username,
		Position:  c.pos,
		Timestamp: h.now().UnixMilli(),
	})
	if err != nil {
		log.Printf("hub: failed to build cursor-updated for conn=%s: %v", c.connID, err)
		return
	}
	h.broadcast(s.roomID, protocol.TypeCursorUpdated, data, c.connID)
}

// apply for docChangeCmd: start or feed the connection's debounce window.
// Rapid successive edits from one sender collapse into a single outbound
// broadcast carrying the latest content.
func (c docChangeCmd) apply(h *Hub) {
	s := h.sessions.get(c.connID)
	if s == nil || s.roomID == "" {
		log.Printf("hub: document-change from unbound conn=%s dropped", c.connID)
		metrics.CommandsDroppedTotal.WithLabelValues("unbound").Inc()
		return
	}

	if p, ok := h.pending[c.connID]; ok {
		// Window already open: keep the timer, replace the content.
		p.documentID = c.documentID
		p.content = c.content
		metrics.DocumentUpdatesCoalesced.Inc()
		return
	}

	h.flushSeq++
	p := &pendingUpdate{
		roomID:     s.roomID,
		documentID: c.documentID,
		content:    c.content,
		seq:        h.flushSeq,
	}
	h.pending[c.connID] = p

	if h.cfg.DebounceWindow <= 0 {
		flushCmd{connID: c.connID, seq: p.seq}.apply(h)
		return
	}
	connID, seq := c.connID, p.seq
	p.timer = h.afterFunc(h.cfg.DebounceWindow, func() {
		h.submit(flushCmd{connID: connID, seq: seq})
	})
}

// apply for flushCmd: emit the pending document update, if still valid.
func (c flushCmd) apply(h *Hub) {
	p, ok := h.pending[c.connID]
	if !ok || p.seq != c.seq {
		return // cancelled or superseded after the timer fired
	}
	delete(h.pending, c.connID)

	s := h.sessions.get(c.connID)
	if s == nil || s.roomID != p.roomID {
		return // left or disconnected since the window opened
	}

	ts := h.now().UnixMilli()
	data, err := protocol.NewServerMessage(protocol.TypeDocumentUpdated, protocol.DocumentUpdatedMsg{
		DocumentID: p.documentID,
		Content:    p.content,
		UserID:     s.identity.UserID,
		Timestamp:  ts,
	})
	if err != nil {
		log.Printf("hub: failed to build document-updated for conn=%s: %v", c.connID, err)
		return
	}
	h.broadcast(p.roomID, protocol.TypeDocumentUpdated, data, c.connID)
	h.persistSnapshot(p, s.identity.UserID, ts)
}

// apply for disconnectCmd: terminal transition. Runs the leave transition if
// joined, then destroys the session row. A second disconnect for the same
// connection finds no row and does nothing.
func (c disconnectCmd) apply(h *Hub) {
	s := h.sessions.get(c.connID)
	if s == nil {
		return
	}
	if s.roomID != "" {
		roomID := s.roomID
		h.leaveRoom(s)
		log.Printf("hub: user %s disconnected from room %s conn=%s", s.identity.Username, roomID, c.connID)
	}
	h.sessions.remove(c.connID)
}

func (c membersCmd) apply(h *Hub) {
	c.reply <- h.registry.members(c.roomID)
}

// leaveRoom runs the shared leave transition: cancel any pending debounce,
// drop membership, clear the session binding, and announce the departure to
// the remaining room members.
func (h *Hub) leaveRoom(s *sessionRow) {
	roomID := s.roomID
	if roomID == "" {
		return
	}

	h.cancelPending(s.connID)

	if !h.registry.leave(roomID, s.connID) {
		s.roomID = ""
		return
	}
	s.roomID = ""

	h.mirrorPresence(s.connID, func(ctx context.Context) error {
		return h.presence.ClearRoom(ctx, s.connID)
	})

	data, err := protocol.NewServerMessage(protocol.TypeUserLeft, protocol.UserLeftMsg{
		UserID:   s.identity.UserID,
		Username: s.identity.Username,
	})
	if err != nil {
		log.Printf("hub: failed to build user-left for conn=%s: %v", s.connID, err)
		return
	}
	h.broadcast(roomID, protocol.TypeUserLeft, data, s.connID)
}

// cancelPending stops a connection's debounce timer. Content still pending
// is forwarded to the persistence path so the last edit before a disconnect
// is not lost, but no broadcast is emitted — the connection is on its way
// out of the room.
func (h *Hub) cancelPending(connID string) {
	p, ok := h.pending[connID]
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(h.pending, connID)

	if s := h.sessions.get(connID); s != nil {
		h.persistSnapshot(p, s.identity.UserID, h.now().UnixMilli())
	}
}

// sendParticipants unicasts the room's current member list to one connection.
func (h *Hub) sendParticipants(connID, roomID string) {
	members := h.registry.members(roomID)
	infos := make([]protocol.ParticipantInfo, 0, len(members))
	for _, m := range members {
		infos = append(infos, protocol.ParticipantInfo{UserID: m.UserID, Username: m.Username})
	}

	data, err := protocol.NewServerMessage(protocol.TypeRoomParticipants, protocol.RoomParticipantsMsg{
		RoomID:       roomID,
		Participants: infos,
	})
	if err != nil {
		log.Printf("hub: failed to build room-participants for conn=%s: %v", connID, err)
		return
	}
	h.router.unicast(connID, data)
	metrics.EventsBroadcastTotal.WithLabelValues(protocol.TypeRoomParticipants).Inc()
}

// broadcast fans an encoded event out to the room and mirrors it to the
// room-event firehose.
func (h *Hub) broadcast(roomID, eventType string, data []byte, exclude string) {
	h.router.broadcast(roomID, data, exclude)
	metrics.EventsBroadcastTotal.WithLabelValues(eventType).Inc()

	if h.events != nil {
		if err := h.events.PublishRoomEvent(roomID, data); err != nil {
			log.Printf("hub: room event mirror room=%s: %v", roomID, err)
		}
	}
}

// persistSnapshot hands a document snapshot to the async persistence path.
func (h *Hub) persistSnapshot(p *pendingUpdate, userID string, ts int64) {
	if h.events == nil {
		return
	}
	snap := document.Snapshot{
		DocumentID: p.documentID,
		RoomID:     p.roomID,
		Content:    p.content,
		UserID:     userID,
		Ts:         ts,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("hub: failed to marshal snapshot doc=%s: %v", p.documentID, err)
		return
	}
	if err := h.events.PublishDocumentSnapshot(data); err != nil {
		log.Printf("hub: snapshot publish doc=%s: %v", p.documentID, err)
	}
}
