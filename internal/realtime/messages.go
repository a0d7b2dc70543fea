package realtime

import "time"

// Inbound event types
const (
	EventJoinChatSession      = "join_chat_session"
	EventLeaveChatSession     = "leave_chat_session"
	EventChatMessage          = "chat_message"
	EventJoinDebugSession     = "join_debug_session"
	EventDebugUpdate          = "debug_update"
	EventTypingStart          = "typing_start"
	EventTypingStop           = "typing_stop"
	EventCodeExecutionStart   = "code_execution_start"
	EventCodeExecutionResult  = "code_execution_result"
	EventRequestNotifications = "request_notifications"
	EventPing                 = "ping"
)

// Outbound event types
const (
	EventConnectionEstablished = "connection_established"
	EventJoinedChatSession     = "joined_chat_session"
	EventLeftChatSession       = "left_chat_session"
	EventNewChatMessage        = "new_chat_message"
	EventJoinedDebugSession    = "joined_debug_session"
	EventUserTyping            = "user_typing"
	EventCodeExecutionStatus   = "code_execution_status"
	EventCodeExecutionComplete = "code_execution_complete"
	EventNotifications         = "notifications"
	EventPong                  = "pong"
	EventUserDisconnected      = "user_disconnected"
	EventError                 = "error"
)

// Event is the wire envelope for every inbound and outbound message
type Event struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// NewEvent creates an outbound event stamped with server time
func NewEvent(eventType string, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// NewErrorEvent creates an error event for the originating connection
func NewErrorEvent(message string) *Event {
	return NewEvent(EventError, map[string]interface{}{
		"message": message,
	})
}

// NewRateLimitedEvent creates an error event carrying the retry delay
func NewRateLimitedEvent(message string, retryAfterSeconds int) *Event {
	return NewEvent(EventError, map[string]interface{}{
		"message":    message,
		"retryAfter": retryAfterSeconds,
	})
}

// stringField extracts a string payload field, empty when absent or of
// the wrong type
func (e *Event) stringField(key string) string {
	if e.Data == nil {
		return ""
	}
	s, _ := e.Data[key].(string)
	return s
}

// anyField extracts a raw payload field
func (e *Event) anyField(key string) interface{} {
	if e.Data == nil {
		return nil
	}
	return e.Data[key]
}
