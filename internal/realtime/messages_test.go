package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEnvelope(t *testing.T) {
	ev := NewEvent(EventNewChatMessage, map[string]interface{}{
		"content": "salut",
	})

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, EventNewChatMessage, decoded.Type)
	assert.Equal(t, "salut", decoded.Data["content"])

	_, err = time.Parse(time.RFC3339Nano, decoded.Timestamp)
	assert.NoError(t, err, "timestamp is RFC 3339")
}

func TestRateLimitedEventCarriesRetryAfter(t *testing.T) {
	ev := NewRateLimitedEvent("Too many requests", 120)

	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "Too many requests", ev.Data["message"])
	assert.Equal(t, 120, ev.Data["retryAfter"])
}

func TestFieldExtraction(t *testing.T) {
	ev := &Event{Type: EventChatMessage, Data: map[string]interface{}{
		"sessionId": "s1",
		"count":     3,
	}}

	assert.Equal(t, "s1", ev.stringField("sessionId"))
	assert.Empty(t, ev.stringField("missing"))
	assert.Empty(t, ev.stringField("count"), "non-string fields read as empty")
	assert.Equal(t, 3, ev.anyField("count"))

	empty := &Event{Type: EventPing}
	assert.Empty(t, empty.stringField("sessionId"))
	assert.Nil(t, empty.anyField("anything"))
}
