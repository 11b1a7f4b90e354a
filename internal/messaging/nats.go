// Package messaging provides a NATS client wrapper for pub/sub messaging
// between the collaboration server and downstream consumers. It handles
// connection lifecycle, subject-based subscriptions, and convenience methods
// for the room event and document persistence channels.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used across collaboration services.
const (
	SubjectRoomEvents   = "room.events" // + .<room_id>
	SubjectDocPersist   = "doc.persist" // document snapshots for the writer
	subjectRoomWildcard = SubjectRoomEvents + ".>"
)

// Client wraps the NATS connection with helper methods for pub/sub.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "collab",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewClient(config NATSConfig) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &Client{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishRoomEvent publishes an already-serialized room event to the
// room.events.<roomID> subject for analytics consumers.
func (c *Client) PublishRoomEvent(roomID string, data []byte) error {
	return c.Publish(SubjectRoomEvents+"."+roomID, data)
}

// SubscribeRoomEvents subscribes to room events across all rooms. The subject
// embeds the room ID; the handler receives it alongside the payload.
func (c *Client) SubscribeRoomEvents(handler func(roomID string, data []byte)) error {
	return c.Subscribe(subjectRoomWildcard, func(msg *nats.Msg) {
		roomID := msg.Subject[len(SubjectRoomEvents)+1:]
		handler(roomID, msg.Data)
	})
}

// PublishDocumentSnapshot publishes a serialized document snapshot for the
// document writer to persist.
func (c *Client) PublishDocumentSnapshot(data []byte) error {
	return c.Publish(SubjectDocPersist, data)
}

// SubscribeDocumentSnapshots subscribes to document snapshots awaiting
// persistence.
func (c *Client) SubscribeDocumentSnapshots(handler func(data []byte)) error {
	return c.Subscribe(SubjectDocPersist, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
