// Package realtime implements the session broker behind the product's
// chat, debugging and code-execution features: it accepts persistent
// WebSocket connections, multiplexes them into collaboration rooms,
// tracks presence and liveness, and admission-controls the operations
// clients may perform.
//
// Delivery is at-most-once to currently connected members only. Messages
// sent while a member is offline are not replayed; durable history is
// the persistence layer's job, consulted independently by non-real-time
// reads.
package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacques-ia/relais/internal/config"
	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/ratelimit"
	"github.com/jacques-ia/relais/internal/store"
)

// Broker bundles the registry, room multiplexer, presence handler,
// gateway and sweeper into one in-process service
type Broker struct {
	Registry *Registry
	Rooms    *Rooms
	Presence *Presence
	Gateway  *Gateway

	sweeper  *Sweeper
	upgrader websocket.Upgrader
	cancel   context.CancelFunc
}

// NewBroker wires a broker from configuration. st may be nil when the
// deployment runs without persistence.
func NewBroker(cfg *config.Config, limiter *ratelimit.Limiter, st *store.Store) *Broker {
	registry := NewRegistry()
	rooms := NewRooms()
	presence := NewPresence(registry, rooms)
	gateway := NewGateway(registry, rooms, presence, limiter, st, cfg.ValidateSessions)

	return &Broker{
		Registry: registry,
		Rooms:    rooms,
		Presence: presence,
		Gateway:  gateway,
		sweeper: NewSweeper(registry,
			time.Duration(cfg.SweepIntervalSeconds)*time.Second,
			time.Duration(cfg.IdleTimeoutSeconds)*time.Second),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Connections are anonymous and ephemeral; origin
				// filtering belongs to the fronting proxy.
				return true
			},
		},
	}
}

// Start launches the liveness sweeper
func (b *Broker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.sweeper.Run(ctx)
}

// Stop halts the sweeper and closes every connection
func (b *Broker) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	for _, conn := range b.Registry.Snapshot() {
		conn.CloseTransport()
	}
}

// ApplyConfig picks up reloadable settings from a fresh configuration
func (b *Broker) ApplyConfig(cfg *config.Config) {
	b.sweeper.SetIdleThreshold(time.Duration(cfg.IdleTimeoutSeconds) * time.Second)
}

// HandleWebSocket upgrades an HTTP request and runs the connection until
// it closes
func (b *Broker) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, b.Gateway)
	go client.Run()
}
