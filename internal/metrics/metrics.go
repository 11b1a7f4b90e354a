// Package metrics provides Prometheus instrumentation for the collaboration
// server. It exposes gauges for connection, room, and participant counts,
// counters for event throughput, and histograms for broadcast fan-out.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collab_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live collaboration rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collab_active_rooms",
		Help: "Current number of live collaboration rooms",
	})

	// RoomParticipants tracks the total participant count across all rooms.
	RoomParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collab_room_participants",
		Help: "Total participant count across all rooms",
	})

	// EventsBroadcastTotal counts events fanned out to rooms, labeled by the
	// wire event type ("user-joined", "chat-message", ...).
	EventsBroadcastTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_events_broadcast_total",
		Help: "Total number of events broadcast to rooms",
	}, []string{"type"})

	// CommandsDroppedTotal counts inbound commands dropped without effect,
	// labeled by reason: "unbound", "invalid", "rate_limited", "panic".
	CommandsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_commands_dropped_total",
		Help: "Total number of inbound commands dropped without effect",
	}, []string{"reason"})

	// DocumentUpdatesCoalesced counts document-change commands absorbed into
	// an already pending debounce window.
	DocumentUpdatesCoalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collab_document_updates_coalesced_total",
		Help: "Document-change commands coalesced into a pending broadcast",
	})

	// OutboundQueueDrops counts events dropped because a connection's
	// outbound queue was full.
	OutboundQueueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "collab_outbound_queue_drops_total",
		Help: "Events dropped due to a full per-connection outbound queue",
	})

	// BroadcastFanout records the number of recipients per broadcast.
	BroadcastFanout = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_broadcast_fanout",
		Help:    "Number of recipients per room broadcast",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ActiveRooms,
		RoomParticipants,
		EventsBroadcastTotal,
		CommandsDroppedTotal,
		DocumentUpdatesCoalesced,
		OutboundQueueDrops,
		BroadcastFanout,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
