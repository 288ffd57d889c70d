package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport enumerates the two ingress transports GhostBridge terminates.
type Transport string

const (
	TransportHTTP2 Transport = "http2"
	TransportHTTP3 Transport = "http3"
)

// Connection is owned by the transport listener that accepted it and
// destroyed on close/timeout.
type Connection struct {
	ID           string
	Transport    Transport
	PeerAddr     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// ErrConnectionLimitExceeded is returned by ConnectionTable.Admit when the
// process-wide concurrent-connection limit is already reached. New
// connections past the limit are refused outright; there is no
// "oldest-wins" eviction of existing connections.
var ErrConnectionLimitExceeded = errors.New("gateway: connection limit exceeded")

// ConnectionTable is the active-connection table owned by the multiplexer:
// a mutex-guarded map with a background reaper that tracks admitted
// connections against a process limit and evicts idle ones.
type ConnectionTable struct {
	mu      sync.Mutex
	conns   map[string]*Connection
	maxConn int
	idleTTL time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// NewConnectionTable builds a ConnectionTable enforcing maxConn concurrent
// connections, reaping entries idle past idleTTL.
func NewConnectionTable(maxConn int, idleTTL time.Duration) *ConnectionTable {
	t := &ConnectionTable{
		conns:   make(map[string]*Connection),
		maxConn: maxConn,
		idleTTL: idleTTL,
		closing: make(chan struct{}),
	}
	if idleTTL > 0 {
		go t.reaper()
	}
	return t
}

// Admit registers a new connection from transport/peerAddr, returning
// ErrConnectionLimitExceeded if the process-wide limit is already reached.
func (t *ConnectionTable) Admit(transport Transport, peerAddr string) (*Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxConn > 0 && len(t.conns) >= t.maxConn {
		return nil, ErrConnectionLimitExceeded
	}

	now := time.Now()
	conn := &Connection{
		ID:           uuid.NewString(),
		Transport:    transport,
		PeerAddr:     peerAddr,
		CreatedAt:    now,
		LastActivity: now,
	}
	t.conns[conn.ID] = conn
	return conn, nil
}

// Touch updates a connection's last-activity timestamp, keeping it alive
// against the idle reaper.
func (t *ConnectionTable) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[id]; ok {
		c.LastActivity = time.Now()
	}
}

// Remove destroys a connection entry on close, timeout, or peer
// disconnect.
func (t *ConnectionTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

// Count returns the number of currently tracked connections.
func (t *ConnectionTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// Close stops the idle reaper. It does not forcibly close transport
// sockets; callers own that via their own accept-loop shutdown.
func (t *ConnectionTable) Close() {
	t.closeOnce.Do(func() { close(t.closing) })
}

func (t *ConnectionTable) reaper() {
	ticker := time.NewTicker(t.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-t.idleTTL)
			t.mu.Lock()
			for id, c := range t.conns {
				if c.LastActivity.Before(cutoff) {
					delete(t.conns, id)
				}
			}
			t.mu.Unlock()
		case <-t.closing:
			return
		}
	}
}
