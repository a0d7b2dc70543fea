// Package api exposes the HTTP surface: the WebSocket upgrade endpoint,
// health, and the CRUD/AI/code routes surrounding the broker.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/jacques-ia/relais/internal/llm"
	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/ratelimit"
	"github.com/jacques-ia/relais/internal/realtime"
	"github.com/jacques-ia/relais/internal/runner"
	"github.com/jacques-ia/relais/internal/store"
)

const aiRequestTimeout = 30 * time.Second

// Server is the HTTP front of the service
type Server struct {
	addr    string
	router  *httprouter.Router
	server  *http.Server
	started time.Time

	broker  *realtime.Broker
	limiter *ratelimit.Limiter
	store   *store.Store
	ai      *llm.Manager
	runner  *runner.Runner
}

// NewServer wires the HTTP routes
func NewServer(addr string, broker *realtime.Broker, limiter *ratelimit.Limiter, st *store.Store, ai *llm.Manager, run *runner.Runner) *Server {
	s := &Server{
		addr:    addr,
		router:  httprouter.New(),
		broker:  broker,
		limiter: limiter,
		store:   st,
		ai:      ai,
		runner:  run,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandlerFunc(http.MethodGet, "/ws", s.broker.HandleWebSocket)
	s.router.GET("/health", s.handleHealth)

	// AI completion
	s.router.POST("/api/ai/suggest", s.limit(ratelimit.PoolAI, s.handleAISuggest))
	s.router.GET("/api/ai/models", s.limit("", s.handleAIModels))
	s.router.GET("/api/ai/suggestions/:sessionId", s.limit("", s.handleAISuggestions))
	s.router.POST("/api/ai/suggestions/:id/rate", s.limit("", s.handleAIRate))

	// Code execution
	s.router.POST("/api/code/execute", s.limit(ratelimit.PoolCode, s.handleCodeExecute))
	s.router.GET("/api/code/languages", s.limit("", s.handleCodeLanguages))
	s.router.GET("/api/code/executions/:projectId", s.limit("", s.handleCodeExecutions))
	s.router.POST("/api/code/projects", s.limit("", s.handleCreateProject))

	// Chat persistence
	s.router.POST("/api/chat/sessions", s.limit("", s.handleCreateChatSession))
	s.router.GET("/api/chat/sessions", s.limit("", s.handleListChatSessions))
	s.router.GET("/api/chat/sessions/:id/messages", s.limit("", s.handleListMessages))
	s.router.POST("/api/chat/sessions/:id/messages", s.limit("", s.handleAppendMessage))

	// Debugging sessions
	s.router.POST("/api/debug/sessions", s.limit("", s.handleCreateDebugSession))
	s.router.GET("/api/debug/sessions/:id", s.limit("", s.handleGetDebugSession))
	s.router.PUT("/api/debug/sessions/:id/breakpoints", s.limit("", s.handleSetDebugBreakpoints))
	s.router.DELETE("/api/debug/sessions/:id", s.limit("", s.handleStopDebugSession))
}

// Start starts the HTTP server in the background
func (s *Server) Start() {
	s.started = time.Now()
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening on %s", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error: %v", err)
		}
	}()
}

// Stop shuts the HTTP server down gracefully
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// limit wraps a handler with admission control. The general pool always
// applies; pool adds a second, stricter pool on top (AI and code
// execution routes). Keys are client addresses: connections are
// anonymous, so the transport address is the only stable identity.
func (s *Server) limit(pool ratelimit.Pool, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		key := clientKey(r)

		if res := s.limiter.TryConsume(ratelimit.PoolGeneral, key); !res.Allowed {
			writeRateLimited(w, "Too many requests", res)
			return
		}
		if pool != "" {
			if res := s.limiter.TryConsume(pool, key); !res.Allowed {
				writeRateLimited(w, fmt.Sprintf("Rate limit exceeded for %s requests", pool), res)
				return
			}
		}

		h(w, r, ps)
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimited(w http.ResponseWriter, message string, res ratelimit.Result) {
	secs := res.RetryAfterSeconds()
	w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
		"error":      message,
		"retryAfter": secs,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(s.started).Seconds(),
		"connections": s.broker.Registry.Len(),
	})
}
