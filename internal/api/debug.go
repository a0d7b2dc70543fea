package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/store"
)

func (s *Server) handleCreateDebugSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		ProjectID   string `json:"projectId"`
		Code        string `json:"code"`
		Breakpoints []int  `json:"breakpoints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ProjectID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Project ID and code are required")
		return
	}

	sess, err := s.store.CreateDebugSession(req.ProjectID, clientKey(r), req.Code, req.Breakpoints)
	if err != nil {
		logger.Error("Failed to create debug session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create debug session")
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetDebugSession(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	sess, err := s.store.GetDebugSession(ps.ByName("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Debug session not found")
		return
	}
	if err != nil {
		logger.Error("Failed to load debug session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load debug session")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSetDebugBreakpoints(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Breakpoints []int `json:"breakpoints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Breakpoints == nil {
		writeError(w, http.StatusBadRequest, "Breakpoints must be an array")
		return
	}

	err := s.store.SetDebugBreakpoints(ps.ByName("id"), req.Breakpoints)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Debug session not found")
		return
	}
	if err != nil {
		logger.Error("Failed to update breakpoints: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update breakpoints")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Breakpoints updated",
		"breakpoints": req.Breakpoints,
	})
}

func (s *Server) handleStopDebugSession(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	err := s.store.StopDebugSession(ps.ByName("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Debug session not found")
		return
	}
	if err != nil {
		logger.Error("Failed to stop debug session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to stop debug session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Debug session stopped"})
}
