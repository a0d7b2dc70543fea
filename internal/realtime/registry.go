package realtime

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/jacques-ia/relais/internal/logger"
)

// Sender delivers events to one connection's transport. Send must never
// block; it reports whether the event was accepted. Close tears down the
// transport, which drives the normal disconnect path.
type Sender interface {
	Send(ev *Event) bool
	Close()
}

// Conn is the registry's record of one live transport session. Identity
// is ephemeral: generated at connect time, never persisted.
type Conn struct {
	ID          string
	UserKey     string
	Username    string
	ConnectedAt time.Time

	sender Sender

	mu           sync.Mutex
	lastActivity time.Time
	chatRoom     string
	debugRoom    string
	projectRooms map[string]struct{}
}

// Send forwards an event to the connection's transport, dropping it when
// the transport cannot accept more.
func (c *Conn) Send(ev *Event) bool {
	return c.sender.Send(ev)
}

// CloseTransport closes the underlying transport server-side
func (c *Conn) CloseTransport() {
	c.sender.Close()
}

// Touch records activity at the given instant
func (c *Conn) Touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

// LastActivity returns the most recent activity instant
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// ChatRoom returns the connection's current chat room, empty when none
func (c *Conn) ChatRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatRoom
}

// DebugRoom returns the connection's current debug room, empty when none
func (c *Conn) DebugRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugRoom
}

func (c *Conn) setRoom(kind RoomKind, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case KindChat:
		c.chatRoom = roomID
	case KindDebug:
		c.debugRoom = roomID
	}
}

// clearRoom resets the back-reference only if it still points at roomID,
// guarding against a room switch racing a leave.
func (c *Conn) clearRoom(kind RoomKind, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case KindChat:
		if c.chatRoom == roomID {
			c.chatRoom = ""
		}
	case KindDebug:
		if c.debugRoom == roomID {
			c.debugRoom = ""
		}
	}
}

func (c *Conn) addProjectRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projectRooms == nil {
		c.projectRooms = make(map[string]struct{})
	}
	c.projectRooms[roomID] = struct{}{}
}

func (c *Conn) removeProjectRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.projectRooms, roomID)
}

func (c *Conn) projectRoomIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.projectRooms))
	for id := range c.projectRooms {
		ids = append(ids, id)
	}
	return ids
}

// Registry owns connection lifecycle: registration on handshake, removal
// on disconnect or eviction. It knows nothing about rooms.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
	}
}

// Register allocates an ephemeral identity for a new transport session
// and stores the connection. Registration always succeeds.
func (r *Registry) Register(sender Sender) *Conn {
	id := generateConnectionID()
	now := time.Now()

	conn := &Conn{
		ID:           id,
		UserKey:      "anonymous_" + id,
		Username:     fmt.Sprintf("user_%08x", uint32(xxhash.Sum64String(id))),
		ConnectedAt:  now,
		sender:       sender,
		lastActivity: now,
	}

	r.mu.Lock()
	r.conns[id] = conn
	total := len(r.conns)
	r.mu.Unlock()

	logger.Info("Connection registered: %s (%s), total: %d", conn.Username, id, total)
	return conn
}

// Touch updates a connection's activity timestamp. A no-op when the
// connection is already gone (race with eviction).
func (r *Registry) Touch(connectionID string) {
	r.mu.RLock()
	conn, ok := r.conns[connectionID]
	r.mu.RUnlock()
	if ok {
		conn.Touch(time.Now())
	}
}

// Get returns a connection by id
func (r *Registry) Get(connectionID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connectionID]
	return conn, ok
}

// Unregister removes and returns the connection record, or nothing when
// it was already removed. Announcing the departure to rooms is the
// caller's job.
func (r *Registry) Unregister(connectionID string) (*Conn, bool) {
	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	if ok {
		delete(r.conns, connectionID)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if ok {
		logger.Info("Connection unregistered: %s (%s), total: %d", conn.Username, connectionID, total)
	}
	return conn, ok
}

// Snapshot returns the current connections. The slice is a copy; holding
// it does not block registry mutation.
func (r *Registry) Snapshot() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// generateConnectionID returns a random 16-hex-character id
func generateConnectionID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// fall back to a time-derived id rather than crash the broker.
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
