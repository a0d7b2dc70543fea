package realtime

import (
	"sync"

	"github.com/jacques-ia/relais/internal/logger"
)

// RoomKind distinguishes the three room namespaces. A room id is only
// meaningful within its kind; chat "s1" and debug "s1" are different
// rooms.
type RoomKind string

const (
	KindChat    RoomKind = "chat"
	KindDebug   RoomKind = "debug"
	KindProject RoomKind = "project"
)

type roomKey struct {
	kind RoomKind
	id   string
}

// Rooms owns room membership. Rooms are created implicitly on first join
// and discarded once empty; an empty room and a nonexistent room are
// indistinguishable.
type Rooms struct {
	mu    sync.Mutex
	rooms map[roomKey]map[string]*Conn
}

// NewRooms creates an empty room multiplexer
func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[roomKey]map[string]*Conn),
	}
}

// Join adds the connection to a room, creating the room if absent. For
// chat and debug kinds, a previous room of the same kind is silently
// replaced: last join wins, and the old room gets no leave broadcast.
func (r *Rooms) Join(conn *Conn, roomID string, kind RoomKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind == KindChat || kind == KindDebug {
		var previous string
		if kind == KindChat {
			previous = conn.ChatRoom()
		} else {
			previous = conn.DebugRoom()
		}
		if previous != "" && previous != roomID {
			r.removeLocked(conn, previous, kind)
		}
		conn.setRoom(kind, roomID)
	} else {
		conn.addProjectRoom(roomID)
	}

	key := roomKey{kind: kind, id: roomID}
	members, ok := r.rooms[key]
	if !ok {
		members = make(map[string]*Conn)
		r.rooms[key] = members
	}
	members[conn.ID] = conn

	logger.Debug("%s joined %s room %s (%d members)", conn.Username, kind, roomID, len(members))
}

// Leave removes the connection from a room. A no-op when it is not a
// member.
func (r *Rooms) Leave(conn *Conn, roomID string, kind RoomKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(conn, roomID, kind)
	if kind == KindProject {
		conn.removeProjectRoom(roomID)
	} else {
		conn.clearRoom(kind, roomID)
	}
}

func (r *Rooms) removeLocked(conn *Conn, roomID string, kind RoomKind) {
	key := roomKey{kind: kind, id: roomID}
	members, ok := r.rooms[key]
	if !ok {
		return
	}
	delete(members, conn.ID)
	if len(members) == 0 {
		delete(r.rooms, key)
	}
}

// Broadcast delivers an event to every member of a room except
// excludeID. Delivery is fire and forget per member: an unreachable
// member never blocks or fails delivery to the others. Returns the
// number of recipients.
//
// Holding the room lock across the sends keeps delivery order consistent
// per room; each send only pushes onto a buffered channel so the
// critical section stays short.
func (r *Rooms) Broadcast(kind RoomKind, roomID string, ev *Event, excludeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomKey{kind: kind, id: roomID}]
	if !ok {
		return 0
	}

	count := 0
	for id, member := range members {
		if id == excludeID {
			continue
		}
		if !member.Send(ev) {
			logger.Warn("Dropped %s event for %s: transport backed up", ev.Type, member.Username)
		}
		count++
	}
	return count
}

// MemberCount returns the number of members in a room
func (r *Rooms) MemberCount(kind RoomKind, roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomKey{kind: kind, id: roomID}])
}

// IsMember reports whether the connection is in the room
func (r *Rooms) IsMember(kind RoomKind, roomID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[roomKey{kind: kind, id: roomID}]
	if !ok {
		return false
	}
	_, ok = members[connectionID]
	return ok
}

// DisconnectCleanup removes the connection from its chat and debug rooms
// and announces the departure to their remaining members. Project rooms
// are left silently. Sweeper evictions and voluntary disconnects both
// land here and are indistinguishable to the remaining members.
func (r *Rooms) DisconnectCleanup(conn *Conn) {
	departure := NewEvent(EventUserDisconnected, map[string]interface{}{
		"userId":   conn.UserKey,
		"username": conn.Username,
	})

	if chatRoom := conn.ChatRoom(); chatRoom != "" {
		r.Leave(conn, chatRoom, KindChat)
		r.Broadcast(KindChat, chatRoom, departure, conn.ID)
	}

	if debugRoom := conn.DebugRoom(); debugRoom != "" {
		r.Leave(conn, debugRoom, KindDebug)
		r.Broadcast(KindDebug, debugRoom, departure, conn.ID)
	}

	for _, projectRoom := range conn.projectRoomIDs() {
		r.Leave(conn, projectRoom, KindProject)
	}
}
