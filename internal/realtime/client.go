package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jacques-ia/relais/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound buffer per connection. When it fills, further events for
	// this connection are dropped, never queued unboundedly.
	sendBufferSize = 256
)

// Client adapts one gorilla WebSocket connection to the broker's Sender
// contract
type Client struct {
	conn    *websocket.Conn
	gateway *Gateway
	send    chan *Event

	closeOnce sync.Once
}

// NewClient wraps an upgraded WebSocket connection
func NewClient(conn *websocket.Conn, gateway *Gateway) *Client {
	return &Client{
		conn:    conn,
		gateway: gateway,
		send:    make(chan *Event, sendBufferSize),
	}
}

// Send queues an event for delivery, dropping it when the buffer is full
func (c *Client) Send(ev *Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close tears down the transport. The read pump notices and drives the
// normal disconnect path, so eviction and voluntary disconnect share one
// cleanup route.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// Run registers the connection and starts the pumps. It returns when the
// connection is gone and cleanup has finished.
func (c *Client) Run() {
	state := c.gateway.HandleConnect(c)

	go c.writePump()
	c.readPump(state)
}

// readPump pumps inbound messages into the gateway
func (c *Client) readPump(state *Conn) {
	defer func() {
		c.gateway.HandleDisconnect(state)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket read error for %s: %v", state.Username, err)
			}
			break
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			logger.Error("Failed to unmarshal event from %s: %v", state.Username, err)
			continue
		}

		c.gateway.HandleEvent(state, &ev)
	}
}

// writePump pumps queued events to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				logger.Error("Failed to marshal event: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("WebSocket write failed: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
