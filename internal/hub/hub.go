// Package hub implements the realtime collaboration coordinator. It tracks
// which connections are present in which room and fans join/leave,
// document-change, cursor-move, and chat events out to the right set of
// connections.
//
// All session and room state is owned by a single run goroutine fed by a
// command channel: every mutation is serialized, so two commands affecting
// the same room are never reordered relative to each other, and disconnect
// cleanup is atomic with respect to any broadcast in flight.
package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/syncspace/collab-app/internal/metrics"
	"github.com/syncspace/collab-app/internal/protocol"
)

// presenceTimeout bounds each write to the external presence mirror.
const presenceTimeout = 3 * time.Second

// Config holds tunable parameters for the hub.
type Config struct {
	DebounceWindow time.Duration // coalescing window for document-change, per connection
	CommandBuffer  int           // capacity of the command channel
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: 250 * time.Millisecond,
		CommandBuffer:  1024,
	}
}

// PresenceMirror mirrors session/room bindings to an external store (Redis)
// so the surrounding CRUD layer can answer presence queries. Mirror writes
// happen off the run goroutine and are best-effort: the in-memory tables
// stay authoritative.
type PresenceMirror interface {
	SetMembership(ctx context.Context, connID, userID, username, roomID string) error
	ClearRoom(ctx context.Context, connID string) error
}

// EventMirror publishes room events and document snapshots to an external
// bus (NATS) for analytics and async persistence. Never a delivery path back
// to clients.
type EventMirror interface {
	PublishRoomEvent(roomID string, data []byte) error
	PublishDocumentSnapshot(data []byte) error
}

// pendingUpdate is one connection's open debounce window.
type pendingUpdate struct {
	roomID     string
	documentID string
	content    string
	seq        uint64
	timer      *time.Timer
}

// Hub is the presence/event dispatcher. Construct with New, inject the
// outbound delivery layer, then Start the run goroutine.
type Hub struct {
	cfg      Config
	router   *router
	presence PresenceMirror // optional
	events   EventMirror    // optional

	cmds     chan command
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	// Owned by the run goroutine. Never touched from outside it.
	sessions sessionTable
	registry *registry
	pending  map[string]*pendingUpdate
	flushSeq uint64
}

// New creates a Hub delivering through out. presence and events may be nil.
func New(cfg Config, out Outbound, presence PresenceMirror, events EventMirror) *Hub {
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = DefaultConfig().CommandBuffer
	}
	h := &Hub{
		cfg:       cfg,
		presence:  presence,
		events:    events,
		cmds:      make(chan command, cfg.CommandBuffer),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		now:       time.Now,
		afterFunc: time.AfterFunc,
		sessions:  make(sessionTable),
		registry:  newRegistry(),
		pending:   make(map[string]*pendingUpdate),
	}
	h.router = newRouter(h.registry.memberConns, out)
	return h
}

// Start launches the run goroutine.
func (h *Hub) Start() {
	go h.run()
}

// Stop signals the run goroutine to exit and waits for it. Commands
// submitted after Stop are dropped.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	<-h.stopped
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.done:
			h.shutdown()
			return
		case cmd := <-h.cmds:
			h.applySafe(cmd)
			metrics.ActiveRooms.Set(float64(len(h.registry.rooms)))
			metrics.RoomParticipants.Set(float64(h.registry.participants))
		}
	}
}

// applySafe applies one command, containing any panic to that command so a
// bad payload cannot take the shared registry down with it.
func (h *Hub) applySafe(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("hub: panic applying %T: %v (command dropped)", cmd, r)
			metrics.CommandsDroppedTotal.WithLabelValues("panic").Inc()
		}
	}()
	cmd.apply(h)
}

// shutdown stops all debounce timers. Connections are torn down by the
// gateway's own shutdown path.
func (h *Hub) shutdown() {
	for connID, p := range h.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(h.pending, connID)
	}
}

// submit enqueues a command, giving up if the hub has been stopped.
func (h *Hub) submit(cmd command) {
	select {
	case h.cmds <- cmd:
	case <-h.done:
	}
}

// Connect registers a freshly accepted connection with an empty session row.
func (h *Hub) Connect(connID string) {
	h.submit(connectCmd{connID: connID})
}

// Join moves the connection into roomID, leaving its current room first if
// it has one.
func (h *Hub) Join(connID, roomID string, id Identity) {
	h.submit(joinCmd{connID: connID, roomID: roomID, id: id})
}

// Leave removes the connection from its current room, if any.
func (h *Hub) Leave(connID string) {
	h.submit(leaveCmd{connID: connID})
}

// Chat broadcasts a chat message to the connection's room, sender included.
func (h *Hub) Chat(connID, message string) {
	h.submit(chatCmd{connID: connID, message: message})
}

// DocumentChange records a whole-content document snapshot for debounced
// propagation to the rest of the room.
func (h *Hub) DocumentChange(connID, documentID, content string) {
	h.submit(docChangeCmd{connID: connID, documentID: documentID, content: content})
}

// CursorMove broadcasts the connection's cursor position to the rest of its
// room.
func (h *Hub) CursorMove(connID string, x, y float64) {
	h.submit(cursorCmd{connID: connID, pos: protocol.Position{X: x, Y: y}})
}

// Disconnect runs the terminal cleanup transition for a connection. Safe to
// call more than once; only the first call has any effect.
func (h *Hub) Disconnect(connID string) {
	h.submit(disconnectCmd{connID: connID})
}

// Members returns a snapshot of the room's current participants in join
// order. Because the query is serialized with mutations, the answer reflects
// every command submitted before it — callers can use it as a barrier.
func (h *Hub) Members(roomID string) []Participant {
	reply := make(chan []Participant, 1)
	select {
	case h.cmds <- membersCmd{roomID: roomID, reply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case members := <-reply:
		return members
	case <-h.stopped:
		return nil
	}
}

// mirrorPresence runs one best-effort presence mirror write off the run
// goroutine with a bounded timeout.
func (h *Hub) mirrorPresence(connID string, fn func(ctx context.Context) error) {
	if h.presence == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("hub: presence mirror conn=%s: %v", connID, err)
		}
	}()
}
