package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/jacques-ia/relais/internal/llm"
	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/store"
)

type suggestRequest struct {
	Prompt    string `json:"prompt"`
	Context   string `json:"context"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	MaxTokens int    `json:"maxTokens"`
}

func (s *Server) handleAISuggest(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	task := llm.TaskType(req.Type)
	ctx, cancel := context.WithTimeout(r.Context(), aiRequestTimeout)
	defer cancel()

	start := time.Now()
	client := s.ai.Client()
	completion, err := client.Complete(ctx, &llm.CompletionRequest{
		Prompt:       req.Prompt,
		Context:      req.Context,
		Task:         task,
		SystemPrompt: llm.SystemPrompt(task),
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		logger.Error("AI completion failed: %v", err)
		writeError(w, http.StatusBadGateway, "AI request failed")
		return
	}
	elapsed := time.Since(start)

	sug := &store.Suggestion{
		SessionID:    req.SessionID,
		Prompt:       req.Prompt,
		Response:     completion.Text,
		ModelUsed:    client.ModelName(),
		TokensUsed:   completion.TokensUsed,
		ResponseTime: elapsed.Milliseconds(),
	}
	if err := s.store.RecordSuggestion(sug); err != nil {
		logger.Warn("Failed to persist suggestion: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           sug.ID,
		"response":     completion.Text,
		"model":        client.ModelName(),
		"tokensUsed":   completion.TokensUsed,
		"responseTime": elapsed.Milliseconds(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAIModels(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": s.ai.Models(),
	})
}

func (s *Server) handleAISuggestions(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	sessionID := ps.ByName("sessionId")
	suggestions, err := s.store.ListSuggestions(sessionID, 0)
	if err != nil {
		logger.Error("Failed to list suggestions: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load suggestions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":   sessionID,
		"suggestions": suggestions,
	})
}

func (s *Server) handleAIRate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	err := s.store.RateSuggestion(ps.ByName("id"), body.Rating)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Suggestion not found")
		return
	}
	if err != nil {
		logger.Error("Failed to rate suggestion: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save rating")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "rated"})
}
