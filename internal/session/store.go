package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// PresencePrefix is the Redis key prefix for all presence hashes.
	PresencePrefix = "presence:"

	// PresenceTTL is the time-to-live for presence keys in Redis. Rows are
	// refreshed on activity and deleted on disconnect; the TTL is a backstop
	// against rows orphaned by a crashed server.
	PresenceTTL = 1 * time.Hour
)

// Presence is one connection's mirrored state.
type Presence struct {
	ConnID     string `redis:"conn_id"`
	UserID     string `redis:"user_id"`
	Username   string `redis:"username"`
	RoomID     string `redis:"room_id"` // empty while unbound
	Server     string `redis:"server"`  // which server instance holds the connection
	CreatedAt  int64  `redis:"created_at"`
	LastActive int64  `redis:"last_active"`
}

// Store manages presence rows in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this server instance
}

// NewStore creates a new presence store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create stores a fresh presence row with no identity or room binding.
func (s *Store) Create(ctx context.Context, connID string) error {
	key := PresencePrefix + connID
	now := time.Now().Unix()

	row := map[string]interface{}{
		"conn_id":     connID,
		"user_id":     "",
		"username":    "",
		"room_id":     "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, row)
	pipe.Expire(ctx, key, PresenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a presence row. Returns nil if not found.
func (s *Store) Get(ctx context.Context, connID string) (*Presence, error) {
	key := PresencePrefix + connID
	var p Presence
	err := s.client.HGetAll(ctx, key).Scan(&p)
	if err != nil {
		return nil, err
	}
	if p.ConnID == "" {
		return nil, nil // not found
	}
	return &p, nil
}

// SetMembership records the connection's identity and room binding after a
// successful join, refreshing the TTL.
func (s *Store) SetMembership(ctx context.Context, connID, userID, username, roomID string) error {
	key := PresencePrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"user_id", userID,
		"username", username,
		"room_id", roomID,
		"last_active", time.Now().Unix(),
	)
	pipe.Expire(ctx, key, PresenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearRoom clears the connection's room binding on leave. Identity is kept:
// the connection is still live, just unbound.
func (s *Store) ClearRoom(ctx context.Context, connID string) error {
	key := PresencePrefix + connID
	return s.client.HSet(ctx, key, "room_id", "", "last_active", time.Now().Unix()).Err()
}

// RefreshTTL extends a presence row's TTL.
func (s *Store) RefreshTTL(ctx context.Context, connID string) error {
	key := PresencePrefix + connID
	return s.client.Expire(ctx, key, PresenceTTL).Err()
}

// Delete removes a presence row on disconnect.
func (s *Store) Delete(ctx context.Context, connID string) error {
	key := PresencePrefix + connID
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages
// (rate limiting shares the connection pool).
func (s *Store) Client() *redis.Client {
	return s.client
}
