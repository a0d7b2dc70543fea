// Package store persists chat, code and debug records in SQLite. The
// broker consults it only to check that a session exists; everything
// else is ordinary request/response CRUD for the REST layer.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound reports that the requested record does not exist.
// Callers branch on it to distinguish a missing id from a failing
// database.
var ErrNotFound = errors.New("record not found")

// Store wraps the SQLite database
type Store struct {
	db *sql.DB
}

// ChatSession is a persisted chat session
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one persisted message within a session
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	UserKey   string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Project is a persisted code project
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
}

// Execution is one persisted code-execution record
type Execution struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	UserKey       string    `json:"user_id"`
	Output        string    `json:"output"`
	ErrorOutput   string    `json:"error_output"`
	ExecutionTime int64     `json:"execution_time"`
	Language      string    `json:"language"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// DebugSession is a persisted debugging session. Breakpoints, variables
// and the call stack round-trip through JSON text columns.
type DebugSession struct {
	ID           string                 `json:"id"`
	ProjectID    string                 `json:"project_id"`
	UserKey      string                 `json:"user_id"`
	CodeSnapshot string                 `json:"code_snapshot"`
	Breakpoints  []int                  `json:"breakpoints"`
	Variables    map[string]interface{} `json:"variables"`
	CallStack    []string               `json:"call_stack"`
	Status       string                 `json:"status"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Suggestion is one persisted AI suggestion
type Suggestion struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	ModelUsed    string    `json:"model_used"`
	TokensUsed   int       `json:"tokens_used"`
	ResponseTime int64     `json:"response_time"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
}

// Open opens (creating if needed) the database at dbPath and ensures the
// schema exists
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
		content TEXT NOT NULL,
		user_key TEXT,
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES chat_sessions (id)
	);

	CREATE TABLE IF NOT EXISTS code_projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		language TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS code_executions (
		id TEXT PRIMARY KEY,
		project_id TEXT,
		user_key TEXT,
		output TEXT,
		error_output TEXT,
		execution_time INTEGER,
		language TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('success', 'error', 'timeout')),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS debug_sessions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		user_key TEXT,
		code_snapshot TEXT NOT NULL,
		breakpoints TEXT DEFAULT '[]',
		variables TEXT DEFAULT '{}',
		call_stack TEXT DEFAULT '[]',
		status TEXT NOT NULL CHECK (status IN ('active', 'paused', 'stopped')),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (project_id) REFERENCES code_projects (id)
	);

	CREATE TABLE IF NOT EXISTS ai_suggestions (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		model_used TEXT NOT NULL,
		tokens_used INTEGER DEFAULT 0,
		response_time INTEGER,
		rating INTEGER CHECK (rating IS NULL OR (rating >= 1 AND rating <= 5)),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_code_executions_project ON code_executions(project_id);
	CREATE INDEX IF NOT EXISTS idx_debug_sessions_project ON debug_sessions(project_id);
	CREATE INDEX IF NOT EXISTS idx_ai_suggestions_session ON ai_suggestions(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateChatSession inserts a new chat session and returns it
func (s *Store) CreateChatSession(title string) (*ChatSession, error) {
	sess := &ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO chat_sessions (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	return sess, nil
}

// ListChatSessions returns every chat session, most recently active
// first
func (s *Store) ListChatSessions() ([]*ChatSession, error) {
	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at
		FROM chat_sessions
		ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		sess := &ChatSession{}
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// ChatSessionExists reports whether a chat session id is known
func (s *Store) ChatSessionExists(sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM chat_sessions WHERE id = ?`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up chat session: %w", err)
	}
	return true, nil
}

// AppendMessage stores one chat message and bumps the session timestamp
func (s *Store) AppendMessage(sessionID, role, content, userKey string) (*ChatMessage, error) {
	msg := &ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		UserKey:   userKey,
		Timestamp: time.Now().UTC(),
	}

	res, err := s.db.Exec(`
		INSERT INTO chat_messages (session_id, role, content, user_key, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, msg.UserKey, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	if msg.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	if _, err := s.db.Exec(`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		msg.Timestamp, sessionID); err != nil {
		return nil, fmt.Errorf("failed to touch chat session: %w", err)
	}

	return msg, nil
}

// ListMessages returns up to limit messages for a session, oldest first
func (s *Store) ListMessages(sessionID string, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, user_key, timestamp
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY id ASC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		msg := &ChatMessage{}
		var userKey sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &userKey, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.UserKey = userKey.String
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CreateProject inserts a new code project
func (s *Store) CreateProject(name, description, language string) (*Project, error) {
	p := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Language:    language,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO code_projects (id, name, description, language, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Language, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return p, nil
}

// RecordExecution stores one code-execution result
func (s *Store) RecordExecution(exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO code_executions (id, project_id, user_key, output, error_output, execution_time, language, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ProjectID, exec.UserKey, exec.Output, exec.ErrorOutput,
		exec.ExecutionTime, exec.Language, exec.Status, exec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent executions for a project
func (s *Store) ListExecutions(projectID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, project_id, user_key, output, error_output, execution_time, language, status, created_at
		FROM code_executions
		WHERE project_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		exec := &Execution{}
		var projID, userKey, output, errOut sql.NullString
		var execTime sql.NullInt64
		if err := rows.Scan(&exec.ID, &projID, &userKey, &output, &errOut, &execTime,
			&exec.Language, &exec.Status, &exec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		exec.ProjectID = projID.String
		exec.UserKey = userKey.String
		exec.Output = output.String
		exec.ErrorOutput = errOut.String
		exec.ExecutionTime = execTime.Int64
		executions = append(executions, exec)
	}

	return executions, rows.Err()
}

// CreateDebugSession inserts a new active debugging session
func (s *Store) CreateDebugSession(projectID, userKey, codeSnapshot string, breakpoints []int) (*DebugSession, error) {
	if breakpoints == nil {
		breakpoints = []int{}
	}

	sess := &DebugSession{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		UserKey:      userKey,
		CodeSnapshot: codeSnapshot,
		Breakpoints:  breakpoints,
		Variables:    map[string]interface{}{},
		CallStack:    []string{},
		Status:       "active",
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	bps, err := json.Marshal(sess.Breakpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to encode breakpoints: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO debug_sessions (id, project_id, user_key, code_snapshot, breakpoints, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.UserKey, sess.CodeSnapshot, string(bps),
		sess.Status, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create debug session: %w", err)
	}

	return sess, nil
}

// GetDebugSession returns one debugging session, ErrNotFound when the id
// is unknown
func (s *Store) GetDebugSession(id string) (*DebugSession, error) {
	sess := &DebugSession{}
	var userKey sql.NullString
	var bps, vars, stack string

	err := s.db.QueryRow(`
		SELECT id, project_id, user_key, code_snapshot, breakpoints, variables, call_stack, status, created_at, updated_at
		FROM debug_sessions
		WHERE id = ?`, id).Scan(
		&sess.ID, &sess.ProjectID, &userKey, &sess.CodeSnapshot,
		&bps, &vars, &stack, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("debug session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load debug session: %w", err)
	}
	sess.UserKey = userKey.String

	if err := json.Unmarshal([]byte(bps), &sess.Breakpoints); err != nil {
		sess.Breakpoints = []int{}
	}
	if err := json.Unmarshal([]byte(vars), &sess.Variables); err != nil {
		sess.Variables = map[string]interface{}{}
	}
	if err := json.Unmarshal([]byte(stack), &sess.CallStack); err != nil {
		sess.CallStack = []string{}
	}

	return sess, nil
}

// SetDebugBreakpoints replaces a session's breakpoints
func (s *Store) SetDebugBreakpoints(id string, breakpoints []int) error {
	if breakpoints == nil {
		breakpoints = []int{}
	}
	bps, err := json.Marshal(breakpoints)
	if err != nil {
		return fmt.Errorf("failed to encode breakpoints: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE debug_sessions
		SET breakpoints = ?, updated_at = ?
		WHERE id = ?`, string(bps), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update breakpoints: %w", err)
	}

	return checkFound(res, "debug session", id)
}

// StopDebugSession marks a session stopped. The row is kept; the
// original product treats deletion as a status change.
func (s *Store) StopDebugSession(id string) error {
	res, err := s.db.Exec(`
		UPDATE debug_sessions
		SET status = 'stopped', updated_at = ?
		WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to stop debug session: %w", err)
	}

	return checkFound(res, "debug session", id)
}

func checkFound(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// RecordSuggestion stores one AI suggestion
func (s *Store) RecordSuggestion(sug *Suggestion) error {
	if sug.ID == "" {
		sug.ID = uuid.NewString()
	}
	if sug.CreatedAt.IsZero() {
		sug.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO ai_suggestions (id, session_id, prompt, response, model_used, tokens_used, response_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sug.ID, sug.SessionID, sug.Prompt, sug.Response, sug.ModelUsed,
		sug.TokensUsed, sug.ResponseTime, sug.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record suggestion: %w", err)
	}
	return nil
}

// ListSuggestions returns the most recent suggestions for a session
func (s *Store) ListSuggestions(sessionID string, limit int) ([]*Suggestion, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, prompt, response, model_used, tokens_used, response_time, COALESCE(rating, 0), created_at
		FROM ai_suggestions
		WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*Suggestion
	for rows.Next() {
		sug := &Suggestion{}
		var sessID sql.NullString
		var respTime sql.NullInt64
		if err := rows.Scan(&sug.ID, &sessID, &sug.Prompt, &sug.Response, &sug.ModelUsed,
			&sug.TokensUsed, &respTime, &sug.Rating, &sug.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		sug.SessionID = sessID.String
		sug.ResponseTime = respTime.Int64
		suggestions = append(suggestions, sug)
	}

	return suggestions, rows.Err()
}

// RateSuggestion records a 1-5 rating for a stored suggestion
func (s *Store) RateSuggestion(id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", rating)
	}

	res, err := s.db.Exec(`UPDATE ai_suggestions SET rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return fmt.Errorf("failed to rate suggestion: %w", err)
	}

	return checkFound(res, "suggestion", id)
}
