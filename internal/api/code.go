package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/jacques-ia/relais/internal/logger"
	"github.com/jacques-ia/relais/internal/runner"
	"github.com/jacques-ia/relais/internal/store"
)

type executeRequest struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	Input     string `json:"input"`
	ProjectID string `json:"projectId"`
}

func (s *Server) handleCodeExecute(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "Code is required")
		return
	}
	if !runner.Supported(req.Language) {
		writeError(w, http.StatusBadRequest, "Unsupported language: "+req.Language)
		return
	}

	start := time.Now()
	result, err := s.runner.Run(r.Context(), req.Code, req.Language, req.Input)
	if err != nil {
		if errors.Is(err, runner.ErrUnsupportedLanguage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("Code execution failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Execution failed")
		return
	}
	elapsed := time.Since(start)

	exec := &store.Execution{
		ProjectID:     req.ProjectID,
		UserKey:       clientKey(r),
		Output:        result.Output,
		ErrorOutput:   result.Error,
		ExecutionTime: elapsed.Milliseconds(),
		Language:      req.Language,
		Status:        result.Status,
	}
	if err := s.store.RecordExecution(exec); err != nil {
		logger.Warn("Failed to persist execution: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            exec.ID,
		"output":        result.Output,
		"error":         result.Error,
		"status":        result.Status,
		"executionTime": elapsed.Milliseconds(),
		"language":      req.Language,
	})
}

func (s *Server) handleCodeLanguages(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"languages": runner.Languages(),
	})
}

func (s *Server) handleCodeExecutions(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	projectID := ps.ByName("projectId")
	executions, err := s.store.ListExecutions(projectID, 0)
	if err != nil {
		logger.Error("Failed to list executions: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projectId":  projectID,
		"executions": executions,
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Language    string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if !runner.Supported(req.Language) {
		writeError(w, http.StatusBadRequest, "Unsupported language: "+req.Language)
		return
	}

	project, err := s.store.CreateProject(req.Name, req.Description, req.Language)
	if err != nil {
		logger.Error("Failed to create project: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, project)
}
