package realtime

import (
	"time"

	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/ratelimit"
	"github.com/jacques-ia/relais/internal/store"
)

// Gateway is the single entry point for inbound events: it validates
// required fields, consults the admission controller where applicable,
// and dispatches to the room multiplexer and presence handler.
//
// Validation and rate-limit failures are terminal for the triggering
// event and reported only to the originator; they never reach other room
// members.
type Gateway struct {
	registry *Registry
	rooms    *Rooms
	presence *Presence
	limiter  *ratelimit.Limiter

	// store is optional; when set together with validateSessions, joins
	// to unknown chat sessions are refused.
	store            *store.Store
	validateSessions bool
}

// NewGateway wires the gateway to its collaborators. st may be nil.
func NewGateway(registry *Registry, rooms *Rooms, presence *Presence, limiter *ratelimit.Limiter, st *store.Store, validateSessions bool) *Gateway {
	return &Gateway{
		registry:         registry,
		rooms:            rooms,
		presence:         presence,
		limiter:          limiter,
		store:            st,
		validateSessions: validateSessions,
	}
}

// HandleConnect registers a new transport session and acknowledges it
func (g *Gateway) HandleConnect(sender Sender) *Conn {
	conn := g.registry.Register(sender)

	conn.Send(NewEvent(EventConnectionEstablished, map[string]interface{}{
		"message":  "WebSocket connection established",
		"userId":   conn.UserKey,
		"username": conn.Username,
	}))

	return conn
}

// HandleDisconnect removes the connection and announces the departure to
// its rooms. Safe to call for an already-removed connection.
func (g *Gateway) HandleDisconnect(conn *Conn) {
	if _, ok := g.registry.Unregister(conn.ID); !ok {
		return
	}
	g.rooms.DisconnectCleanup(conn)
}

// HandleEvent validates and dispatches one inbound event. Every event
// counts as activity for liveness purposes.
func (g *Gateway) HandleEvent(conn *Conn, ev *Event) {
	g.registry.Touch(conn.ID)

	switch ev.Type {
	case EventJoinChatSession:
		g.handleJoinChat(conn, ev)
	case EventLeaveChatSession:
		g.handleLeaveChat(conn, ev)
	case EventChatMessage:
		g.handleChatMessage(conn, ev)
	case EventJoinDebugSession:
		g.handleJoinDebug(conn, ev)
	case EventDebugUpdate:
		g.handleDebugUpdate(conn, ev)
	case EventTypingStart:
		g.presence.SendTyping(conn, ev.stringField("sessionId"), true)
	case EventTypingStop:
		g.presence.SendTyping(conn, ev.stringField("sessionId"), false)
	case EventCodeExecutionStart:
		g.handleCodeExecutionStart(conn, ev)
	case EventCodeExecutionResult:
		g.handleCodeExecutionResult(conn, ev)
	case EventRequestNotifications:
		conn.Send(NewEvent(EventNotifications, map[string]interface{}{
			"count":         0,
			"notifications": []interface{}{},
		}))
	case EventPing:
		g.presence.Heartbeat(conn)
	default:
		logger.Warn("Unknown event type from %s: %s", conn.Username, ev.Type)
	}
}

func (g *Gateway) handleJoinChat(conn *Conn, ev *Event) {
	sessionID := ev.stringField("sessionId")
	if sessionID == "" {
		conn.Send(NewErrorEvent("Session ID required"))
		return
	}

	if g.validateSessions && g.store != nil {
		exists, err := g.store.ChatSessionExists(sessionID)
		if err != nil {
			logger.Error("Session lookup failed for %s: %v", sessionID, err)
		} else if !exists {
			conn.Send(NewErrorEvent("Unknown chat session"))
			return
		}
	}

	g.rooms.Join(conn, sessionID, KindChat)
	conn.Send(NewEvent(EventJoinedChatSession, map[string]interface{}{
		"sessionId": sessionID,
		"message":   "Joined chat session",
	}))
}

func (g *Gateway) handleLeaveChat(conn *Conn, ev *Event) {
	sessionID := ev.stringField("sessionId")
	if sessionID == "" {
		return
	}

	g.rooms.Leave(conn, sessionID, KindChat)
	conn.Send(NewEvent(EventLeftChatSession, map[string]interface{}{
		"sessionId": sessionID,
		"message":   "Left chat session",
	}))
}

func (g *Gateway) handleChatMessage(conn *Conn, ev *Event) {
	sessionID := ev.stringField("sessionId")
	message := ev.stringField("message")
	if sessionID == "" || message == "" {
		conn.Send(NewErrorEvent("Session ID and message required"))
		return
	}

	if res := g.limiter.TryConsume(ratelimit.PoolGeneral, conn.UserKey); !res.Allowed {
		conn.Send(NewRateLimitedEvent("Too many requests", res.RetryAfterSeconds()))
		return
	}

	role := ev.stringField("role")
	if role == "" {
		role = "user"
	}

	// Chat messages echo back to the sender: the client renders its own
	// message from the broadcast, not from local state.
	out := NewEvent(EventNewChatMessage, map[string]interface{}{
		"id":        time.Now().UnixMilli(),
		"sessionId": sessionID,
		"role":      role,
		"content":   message,
		"userId":    conn.UserKey,
		"username":  conn.Username,
	})
	g.rooms.Broadcast(KindChat, sessionID, out, "")
}

func (g *Gateway) handleJoinDebug(conn *Conn, ev *Event) {
	sessionID := ev.stringField("sessionId")
	if sessionID == "" {
		conn.Send(NewErrorEvent("Debug session ID required"))
		return
	}

	g.rooms.Join(conn, sessionID, KindDebug)
	conn.Send(NewEvent(EventJoinedDebugSession, map[string]interface{}{
		"sessionId": sessionID,
		"message":   "Joined debug session",
	}))
}

func (g *Gateway) handleDebugUpdate(conn *Conn, ev *Event) {
	sessionID := ev.stringField("sessionId")
	updateType := ev.stringField("type")
	if sessionID == "" || updateType == "" {
		conn.Send(NewErrorEvent("Session ID and type required"))
		return
	}

	out := NewEvent(EventDebugUpdate, map[string]interface{}{
		"type":     updateType,
		"payload":  ev.anyField("payload"),
		"userId":   conn.UserKey,
		"username": conn.Username,
	})
	g.rooms.Broadcast(KindDebug, sessionID, out, conn.ID)
}

func (g *Gateway) handleCodeExecutionStart(conn *Conn, ev *Event) {
	projectID := ev.stringField("projectId")
	language := ev.stringField("language")
	if projectID == "" {
		conn.Send(NewErrorEvent("Project ID required"))
		return
	}

	conn.Send(NewEvent(EventCodeExecutionStatus, map[string]interface{}{
		"status":    "started",
		"projectId": projectID,
		"language":  language,
	}))

	// Starting an execution enrolls the sender in the project room so
	// collaborators on the same project see each other's runs.
	g.rooms.Join(conn, projectID, KindProject)

	out := NewEvent(EventCodeExecutionStatus, map[string]interface{}{
		"status":    "started",
		"projectId": projectID,
		"language":  language,
		"userId":    conn.UserKey,
		"username":  conn.Username,
	})
	g.rooms.Broadcast(KindProject, projectID, out, conn.ID)
}

func (g *Gateway) handleCodeExecutionResult(conn *Conn, ev *Event) {
	projectID := ev.stringField("projectId")
	if projectID == "" {
		conn.Send(NewErrorEvent("Project ID required"))
		return
	}

	data := map[string]interface{}{
		"projectId":     projectID,
		"result":        ev.anyField("result"),
		"error":         ev.anyField("error"),
		"executionTime": ev.anyField("executionTime"),
		"userId":        conn.UserKey,
		"username":      conn.Username,
	}

	conn.Send(NewEvent(EventCodeExecutionComplete, data))
	g.rooms.Broadcast(KindProject, projectID, NewEvent(EventCodeExecutionComplete, data), conn.ID)
}
