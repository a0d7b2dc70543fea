package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/store"
)

func (s *Server) handleCreateChatSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}

	sess, err := s.store.CreateChatSession(req.Title)
	if err != nil {
		logger.Error("Failed to create chat session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListChatSessions(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	sessions, err := s.store.ListChatSessions()
	if err != nil {
		logger.Error("Failed to list chat sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.ChatSession{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("id")

	exists, err := s.store.ChatSessionExists(sessionID)
	if err != nil {
		logger.Error("Failed to look up chat session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	messages, err := s.store.ListMessages(sessionID, 0)
	if err != nil {
		logger.Error("Failed to list messages: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"messages":  messages,
	})
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("id")

	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	if req.Role != "user" && req.Role != "assistant" && req.Role != "system" {
		writeError(w, http.StatusBadRequest, "Invalid role: "+req.Role)
		return
	}

	exists, err := s.store.ChatSessionExists(sessionID)
	if err != nil {
		logger.Error("Failed to look up chat session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	msg, err := s.store.AppendMessage(sessionID, req.Role, req.Content, clientKey(r))
	if err != nil {
		logger.Error("Failed to append message: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to store message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
