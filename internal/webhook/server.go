// internal/webhook/server.go
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/user/aletheia/internal/chat"
	"github.com/user/aletheia/internal/state"
	"github.com/user/aletheia/internal/types"
)

// TaskHandler sends a task's prompt and returns the finished exchange.
type TaskHandler func(ctx context.Context, task state.Task) (*chat.Exchange, error)

// SessionSource exposes live chat sessions for the debug API.
type SessionSource interface {
	Keys() []types.ChatKey
	Snapshots() map[types.ChatKey]state.Snapshot
}

// Server is a lightweight HTTP handler for webhook endpoints.
type Server struct {
	store    *state.TaskStore
	handler  TaskHandler
	sessions SessionSource
	mux      *http.ServeMux
}

// NewServer creates a new webhook Server. sessions may be nil, in which case
// the session API answers 503.
func NewServer(store *state.TaskStore, handler TaskHandler, sessions SessionSource) *Server {
	s := &Server{
		store:    store,
		handler:  handler,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /webhook", s.handleAdHoc)
	s.mux.HandleFunc("POST /webhook/{name}", s.handleNamedTask)
	s.mux.HandleFunc("GET /api/sessions", s.handleAPISessions)
	s.mux.HandleFunc("GET /api/sessions/{key}", s.handleAPISession)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// adHocRequest is the JSON body for POST /webhook.
type adHocRequest struct {
	Prompt string `json:"prompt"`
	Target string `json:"target"`
	Search bool   `json:"search"`
}

// exchangeResponse is the body returned after a prompt was sent.
type exchangeResponse struct {
	Status         chat.ExchangeStatus  `json:"status"`
	Response       string               `json:"response"`
	MessageID      types.MessageID      `json:"message_id,omitempty"`
	ThinkingTrace  []types.ThinkingStep `json:"thinking_trace"`
	Sources        []types.Source       `json:"sources"`
	Target         string               `json:"target,omitempty"`
	DurationMillis int64                `json:"duration_ms"`
}

func (s *Server) handleAdHoc(w http.ResponseWriter, r *http.Request) {
	var req adHocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	s.run(w, r, state.Task{Name: "webhook", Prompt: req.Prompt, Target: req.Target, Search: req.Search, Enabled: true})
}

// namedTaskRequest is the optional JSON body for POST /webhook/{name}.
type namedTaskRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleNamedTask(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	task, err := s.store.Get(name)
	if errors.Is(err, state.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		slog.Error("load webhook task failed", "task", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !task.Enabled {
		writeError(w, http.StatusForbidden, "task is disabled")
		return
	}

	// Allow body to override the prompt
	var body namedTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Prompt != "" {
		task.Prompt = body.Prompt
	}

	s.run(w, r, *task)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, task state.Task) {
	ex, err := s.handler(r.Context(), task)
	if ex == nil {
		slog.Error("webhook task failed", "task", task.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := exchangeResponse{
		Status:         ex.Status,
		Response:       ex.Reply.Content,
		MessageID:      ex.Reply.ID,
		ThinkingTrace:  ex.Reply.ThinkingTrace,
		Sources:        ex.Reply.Sources,
		Target:         task.Target,
		DurationMillis: ex.Duration().Milliseconds(),
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case ex.Status == chat.ExchangeRejected:
		writeError(w, http.StatusBadRequest, err.Error())
	case ex.Status == chat.ExchangeFailed:
		slog.Warn("webhook task send failed", "task", task.Name, "error", err)
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		slog.Error("webhook task failed", "task", task.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type sessionSummary struct {
	Key                  types.ChatKey        `json:"key"`
	ActiveConversationID types.ConversationID `json:"active_conversation_id"`
	Conversations        int                  `json:"conversations"`
	Messages             int                  `json:"messages"`
	ExchangeInFlight     bool                 `json:"exchange_in_flight"`
	SearchEnabled        bool                 `json:"search_enabled"`
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session API not configured")
		return
	}
	snaps := s.sessions.Snapshots()
	result := make([]sessionSummary, 0, len(snaps))
	for _, key := range s.sessions.Keys() {
		snap, ok := snaps[key]
		if !ok {
			continue
		}
		result = append(result, sessionSummary{
			Key:                  key,
			ActiveConversationID: snap.ActiveConversationID,
			Conversations:        len(snap.Conversations),
			Messages:             len(snap.Messages),
			ExchangeInFlight:     snap.ExchangeInFlight,
			SearchEnabled:        snap.SearchEnabled,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

type sessionDetail struct {
	Key                  types.ChatKey        `json:"key"`
	ActiveConversationID types.ConversationID `json:"active_conversation_id"`
	Conversations        []types.Conversation `json:"conversations"`
	Messages             []types.Message      `json:"messages"`
	ExchangeInFlight     bool                 `json:"exchange_in_flight"`
	SearchEnabled        bool                 `json:"search_enabled"`
	SidebarOpen          bool                 `json:"sidebar_open"`
	Version              uint64               `json:"version"`
}

func (s *Server) handleAPISession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session API not configured")
		return
	}
	key := types.ChatKey(r.PathValue("key"))
	snap, ok := s.sessions.Snapshots()[key]
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{
		Key:                  key,
		ActiveConversationID: snap.ActiveConversationID,
		Conversations:        snap.Conversations,
		Messages:             snap.Messages,
		ExchangeInFlight:     snap.ExchangeInFlight,
		SearchEnabled:        snap.SearchEnabled,
		SidebarOpen:          snap.SidebarOpen,
		Version:              snap.Version,
	})
}
