package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/syncspace/collab-app/internal/metrics"
)

// Connection represents a single WebSocket client connection. Outbound
// events go through a bounded queue drained by a dedicated writer goroutine,
// so one slow client never stalls a broadcast to the rest of a room. Direct
// writes (pong, error replies) share the write mutex with the writer.
type Connection struct {
	ID         string     // connection ID (UUID), never reused
	Conn       net.Conn   // underlying TCP connection
	Fd         int        // file descriptor for epoll lookups
	CreatedAt  time.Time  // when the connection was established
	lastPing   int64      // unix nanos of last client activity, atomic (read workers vs heartbeat)
	writeMu    sync.Mutex // serializes writes to this connection
	processing int32      // atomic flag: 0 = idle, 1 = being read by handleConn

	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// newConnection builds a Connection with an outbound queue of the given
// capacity. The caller starts the writer with startWriter once the
// connection is registered.
func newConnection(id string, conn net.Conn, fd int, queueSize int) *Connection {
	return &Connection{
		ID:        id,
		Conn:      conn,
		Fd:        fd,
		CreatedAt: time.Now(),
		lastPing:  time.Now().UnixNano(),
		outbound:  make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
}

// touch records client activity. Called from read workers and the ping
// handler; the heartbeat goroutine reads concurrently via LastActivity.
func (c *Connection) touch() {
	atomic.StoreInt64(&c.lastPing, time.Now().UnixNano())
}

// LastActivity returns the time of the last observed client activity.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastPing))
}

// Enqueue places an encoded text frame on the outbound queue without
// blocking. It returns false if the queue is full or the connection is
// closed; the event is dropped for this connection only.
func (c *Connection) Enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbound <- data:
		return true
	default:
		metrics.OutboundQueueDrops.Inc()
		return false
	}
}

// startWriter launches the writer goroutine that drains the outbound queue.
// It exits when the connection is closed or a write fails; a failed write is
// not fatal here — the read path or heartbeat notices the dead connection
// and runs the removal exactly once.
func (c *Connection) startWriter(writeTimeout time.Duration) {
	go func() {
		for {
			select {
			case <-c.done:
				return
			case data := <-c.outbound:
				if writeTimeout > 0 {
					_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				}
				err := c.WriteMessage(data)
				_ = c.Conn.SetWriteDeadline(time.Time{})
				if err != nil {
					return
				}
			}
		}
	}()
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9) on the
// connection.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close stops the writer goroutine and closes the underlying network
// connection. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.Conn.Close()
	})
	return err
}

// ConnectionManager is a thread-safe registry that maps connection IDs and
// file descriptors to their respective Connection objects. It supports O(1)
// lookups by both ID and fd.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // connection ID -> Connection
	byFd map[int]*Connection    // fd -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
	}
}

// Add registers a new connection in both the ID and fd lookup maps.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by ID, closes the underlying network
// connection, and removes it from both lookup maps. Returns true if the
// connection was found and removed, false if it was already gone — the
// false path is what makes concurrent removal attempts collapse into one
// cleanup.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil if
// not found.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}

// markProcessing attempts to claim the connection's read slot. Used to guard
// against duplicate dispatch from level-triggered epoll.
func (c *Connection) markProcessing() bool {
	return atomic.CompareAndSwapInt32(&c.processing, 0, 1)
}

func (c *Connection) clearProcessing() {
	atomic.StoreInt32(&c.processing, 0)
}
