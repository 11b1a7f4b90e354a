package hub

import (
	"log"

	"github.com/syncspace/collab-app/internal/metrics"
)

// Outbound delivers an encoded event to one connection's outbound queue. It
// must never block: implementations drop the event and return false when the
// queue is full or the connection is gone. The production implementation is
// the WebSocket server; tests substitute a recording fake.
type Outbound interface {
	Enqueue(connID string, data []byte) bool
}

// router resolves a room's current member set and delivers an event to each
// member's outbound queue. Delivery to a single member never blocks or fails
// the whole broadcast: each recipient has its own queue and writer goroutine,
// so a slow or dead client cannot stall the other N-1 members.
//
// The router is only ever invoked from the hub's run goroutine, so reading
// the registry through the members func is race-free.
type router struct {
	members func(roomID string) []string
	out     Outbound
}

func newRouter(members func(roomID string) []string, out Outbound) *router {
	return &router{members: members, out: out}
}

// unicast delivers an event to a single connection.
func (r *router) unicast(connID string, data []byte) {
	if !r.out.Enqueue(connID, data) {
		log.Printf("hub: unicast dropped conn=%s (queue full or closed)", connID)
	}
}

// broadcast delivers an event to every member of roomID except exclude (pass
// "" to include everyone). It returns the number of successful deliveries.
// A room with no members is a no-op, not an error.
func (r *router) broadcast(roomID string, data []byte, exclude string) int {
	delivered := 0
	for _, connID := range r.members(roomID) {
		if connID == exclude {
			continue
		}
		if r.out.Enqueue(connID, data) {
			delivered++
		} else {
			log.Printf("hub: broadcast dropped room=%s conn=%s (queue full or closed)", roomID, connID)
		}
	}
	metrics.BroadcastFanout.Observe(float64(delivered))
	return delivered
}
