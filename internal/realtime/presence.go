package realtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jacques-ia/relais/internal/logger"
)

// Presence handles typing indicators and heartbeats
type Presence struct {
	registry *Registry
	rooms    *Rooms
}

// NewPresence creates the presence handler
func NewPresence(registry *Registry, rooms *Rooms) *Presence {
	return &Presence{registry: registry, rooms: rooms}
}

// SendTyping broadcasts a typing-state change to the rest of the sender's
// chat room. Signals for a room the connection has not joined are
// silently dropped: after a room switch a client may still emit typing
// events for the old room, and those must not leak there.
func (p *Presence) SendTyping(conn *Conn, roomID string, typing bool) {
	if roomID == "" || conn.ChatRoom() != roomID {
		return
	}

	ev := NewEvent(EventUserTyping, map[string]interface{}{
		"userId":   conn.UserKey,
		"username": conn.Username,
		"typing":   typing,
	})
	p.rooms.Broadcast(KindChat, roomID, ev, conn.ID)
}

// Heartbeat records activity and acknowledges immediately so the client
// can measure round-trip liveness
func (p *Presence) Heartbeat(conn *Conn) {
	p.registry.Touch(conn.ID)
	conn.Send(NewEvent(EventPong, nil))
}

// Sweeper periodically evicts connections idle past the threshold.
// Liveness is activity based: any inbound event counts, so an active
// client never needs to heartbeat explicitly.
type Sweeper struct {
	registry *Registry

	interval      time.Duration
	idleThreshold atomic.Int64 // nanoseconds, reloadable at runtime
}

// NewSweeper creates a sweeper with the given period and idle threshold
func NewSweeper(registry *Registry, interval, idleThreshold time.Duration) *Sweeper {
	s := &Sweeper{
		registry: registry,
		interval: interval,
	}
	s.idleThreshold.Store(int64(idleThreshold))
	return s
}

// SetIdleThreshold updates the eviction threshold, taking effect on the
// next pass
func (s *Sweeper) SetIdleThreshold(d time.Duration) {
	s.idleThreshold.Store(int64(d))
}

// Run sweeps on a fixed period until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	logger.Info("Liveness sweeper started (interval: %s)", s.interval)
	defer logger.Info("Liveness sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(time.Now(), time.Duration(s.idleThreshold.Load()))
		case <-ctx.Done():
			return
		}
	}
}

// Sweep closes the transport of every connection idle longer than
// threshold and returns how many were evicted. The registry is only
// snapshotted, never locked across the pass; actual removal happens on
// the disconnect path each close triggers, concurrently with ordinary
// traffic.
func (s *Sweeper) Sweep(now time.Time, threshold time.Duration) int {
	evicted := 0
	for _, conn := range s.registry.Snapshot() {
		if now.Sub(conn.LastActivity()) > threshold {
			logger.Info("Evicting idle connection: %s (%s)", conn.Username, conn.ID)
			conn.CloseTransport()
			evicted++
		}
	}
	return evicted
}
