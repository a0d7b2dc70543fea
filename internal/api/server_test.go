package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacques-ia/relais/internal/config"
	"github.com/jacques-ia/relais/internal/llm"
	"github.com/jacques-ia/relais/internal/ratelimit"
	"github.com/jacques-ia/relais/internal/realtime"
	"github.com/jacques-ia/relais/internal/runner"
	"github.com/jacques-ia/relais/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	st, err := store.Open(filepath.Join(t.TempDir(), "relais.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	limiter := ratelimit.New(map[ratelimit.Pool]ratelimit.PoolSettings{
		ratelimit.PoolGeneral: {Points: 100, Window: time.Minute, Block: time.Minute},
		ratelimit.PoolAI:      {Points: 20, Window: time.Minute, Block: 2 * time.Minute},
		ratelimit.PoolCode:    {Points: 10, Window: time.Minute, Block: 5 * time.Minute},
	})

	broker := realtime.NewBroker(cfg, limiter, st)
	server := NewServer("localhost:0", broker, limiter, st, llm.NewManager(cfg), runner.New())
	server.started = time.Now()
	return server
}

func doJSON(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:54321"
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "OK", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestChatSessionEndpoints(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/chat/sessions", `{"title":"Helping hand"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionID := decodeBody(t, rec)["id"].(string)
	require.NotEmpty(t, sessionID)

	rec = doJSON(t, server, http.MethodPost, "/api/chat/sessions/"+sessionID+"/messages",
		`{"role":"user","content":"bonjour"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/chat/sessions/"+sessionID+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decodeBody(t, rec)["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "bonjour", messages[0].(map[string]interface{})["content"])

	rec = doJSON(t, server, http.MethodGet, "/api/chat/sessions/unknown/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/chat/sessions/"+sessionID+"/messages",
		`{"role":"robot","content":"beep"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChatSessions(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/chat/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["sessions"])

	rec = doJSON(t, server, http.MethodPost, "/api/chat/sessions", `{"title":"first"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	firstID := decodeBody(t, rec)["id"].(string)
	rec = doJSON(t, server, http.MethodPost, "/api/chat/sessions", `{"title":"second"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Activity on the older session moves it back to the front.
	rec = doJSON(t, server, http.MethodPost, "/api/chat/sessions/"+firstID+"/messages",
		`{"role":"user","content":"encore"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/chat/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decodeBody(t, rec)["sessions"].([]interface{})
	require.Len(t, sessions, 2)
	assert.Equal(t, "first", sessions[0].(map[string]interface{})["title"])
}

func TestDebugSessionEndpoints(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/code/projects",
		`{"name":"calc","language":"python"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	projectID := decodeBody(t, rec)["id"].(string)

	rec = doJSON(t, server, http.MethodPost, "/api/debug/sessions",
		`{"projectId":"`+projectID+`","code":"print(1)","breakpoints":[3,7]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	sessionID := body["id"].(string)
	assert.Equal(t, "active", body["status"])

	rec = doJSON(t, server, http.MethodGet, "/api/debug/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, projectID, body["project_id"])
	assert.Equal(t, "print(1)", body["code_snapshot"])
	assert.Len(t, body["breakpoints"].([]interface{}), 2)

	rec = doJSON(t, server, http.MethodPut, "/api/debug/sessions/"+sessionID+"/breakpoints",
		`{"breakpoints":[12]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodDelete, "/api/debug/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Stopping keeps the record, with the status flipped.
	rec = doJSON(t, server, http.MethodGet, "/api/debug/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", decodeBody(t, rec)["status"])
}

func TestDebugSessionValidationAndNotFound(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/debug/sessions", `{"code":"print(1)"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/debug/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server, http.MethodPut, "/api/debug/sessions/missing/breakpoints",
		`{"breakpoints":[1]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server, http.MethodPut, "/api/debug/sessions/missing/breakpoints", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "breakpoints must be present")

	rec = doJSON(t, server, http.MethodDelete, "/api/debug/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAISuggestWithFallback(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/ai/suggest",
		`{"prompt":"write a sort","type":"code_generation","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "fallback", body["model"])
	assert.NotEmpty(t, body["response"])

	// The suggestion is persisted and retrievable.
	rec = doJSON(t, server, http.MethodGet, "/api/ai/suggestions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	suggestions := decodeBody(t, rec)["suggestions"].([]interface{})
	assert.Len(t, suggestions, 1)
}

func TestAISuggestRequiresPrompt(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/ai/suggest", `{"type":"debugging"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIModels(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/ai/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	models := decodeBody(t, rec)["models"].([]interface{})
	assert.Len(t, models, 2)
}

func TestRateSuggestion(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/ai/suggest",
		`{"prompt":"write a sort","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decodeBody(t, rec)["id"].(string)

	rec = doJSON(t, server, http.MethodPost, "/api/ai/suggestions/"+id+"/rate", `{"rating":5}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/ai/suggestions/"+id+"/rate", `{"rating":7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/ai/suggestions/missing/rate", `{"rating":3}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateSuggestionStoreFailure(t *testing.T) {
	cfg := config.Default()
	st, err := store.Open(filepath.Join(t.TempDir(), "relais.db"))
	require.NoError(t, err)

	limiter := ratelimit.New(map[ratelimit.Pool]ratelimit.PoolSettings{
		ratelimit.PoolGeneral: {Points: 100, Window: time.Minute, Block: time.Minute},
		ratelimit.PoolAI:      {Points: 20, Window: time.Minute, Block: 2 * time.Minute},
	})
	broker := realtime.NewBroker(cfg, limiter, st)
	server := NewServer("localhost:0", broker, limiter, st, llm.NewManager(cfg), runner.New())

	require.NoError(t, st.Close())

	// A broken store is a server error, not a missing suggestion.
	rec := doJSON(t, server, http.MethodPost, "/api/ai/suggestions/any/rate", `{"rating":4}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCodeLanguages(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/code/languages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	languages := decodeBody(t, rec)["languages"].([]interface{})
	assert.NotEmpty(t, languages)
}

func TestCodeExecuteValidation(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/code/execute", `{"language":"python"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/code/execute",
		`{"code":"print(1)","language":"brainfuck"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	server := newTestServer(t)

	rec := doJSON(t, server, http.MethodPost, "/api/code/projects",
		`{"name":"calc","language":"python"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["id"])

	rec = doJSON(t, server, http.MethodPost, "/api/code/projects", `{"language":"python"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/code/projects",
		`{"name":"calc","language":"cobol"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeneralRateLimitMiddleware(t *testing.T) {
	cfg := config.Default()
	st, err := store.Open(filepath.Join(t.TempDir(), "relais.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	limiter := ratelimit.New(map[ratelimit.Pool]ratelimit.PoolSettings{
		ratelimit.PoolGeneral: {Points: 3, Window: time.Minute, Block: time.Minute},
	})
	broker := realtime.NewBroker(cfg, limiter, st)
	server := NewServer("localhost:0", broker, limiter, st, llm.NewManager(cfg), runner.New())

	for i := 0; i < 3; i++ {
		rec := doJSON(t, server, http.MethodGet, "/api/code/languages", "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d within the window", i+1)
	}

	rec := doJSON(t, server, http.MethodGet, "/api/code/languages", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	body := decodeBody(t, rec)
	assert.Greater(t, body["retryAfter"].(float64), float64(0))

	// Health is outside the admission-controlled surface.
	rec = doJSON(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitKeysOnClientAddress(t *testing.T) {
	newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/code/languages", nil)
	req.RemoteAddr = "198.51.100.1:1000"
	req.Header.Set("X-Forwarded-For", "192.0.2.10, 198.51.100.1")
	assert.Equal(t, "192.0.2.10", clientKey(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.1", clientKey(req))
}
