package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/df07/blender-llm/agent"
	"github.com/df07/blender-llm/agent/llm"
	"github.com/df07/blender-llm/scene"
)

// ChatRequest is the body of a chat turn. Clients either send the latest
// message alone and let the server keep history, or send the whole
// conversation as a messages array; the last user message is the prompt.
type ChatRequest struct {
	Message  string        `json:"message,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty"`
}

// ChatMessage is one entry of a client-supplied conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// resolve returns the prompt for this turn and any client-supplied history
// preceding it, or ok=false when the request carries no usable message.
func (r *ChatRequest) resolve() (prompt string, history []llm.Message, ok bool) {
	if r.Message != "" {
		return r.Message, nil, true
	}
	if len(r.Messages) == 0 {
		return "", nil, false
	}
	last := r.Messages[len(r.Messages)-1]
	if last.Content == "" {
		return "", nil, false
	}
	for _, m := range r.Messages[:len(r.Messages)-1] {
		role := llm.RoleUser
		if m.Role == string(llm.RoleAssistant) {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Text: m.Content})
	}
	return last.Content, history, true
}

// sseEvent is the envelope streamed to clients.
type sseEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// handleChat runs one conversation turn and streams its events as SSE.
// A thread id of "new" starts a fresh conversation; the first event carries
// the id the client should use from then on.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	prompt, clientHistory, ok := req.resolve()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	threadID := chi.URLParam(r, "thread_id")
	if threadID == "" || threadID == "new" {
		threadID = uuid.New().String()
	}

	setSSEHeaders(w)
	sendSSEEvent(w, sseEvent{Type: "thread", Data: map[string]string{"thread_id": threadID}})

	history := clientHistory
	if history == nil {
		history = s.history(threadID)
	}
	events := s.workflow.ProcessTurn(r.Context(), threadID, prompt, history)

	var reply string
	for event := range events {
		if msg, ok := event.(agent.MessageEvent); ok {
			reply = msg.Content
		}
		if err := sendSSEEvent(w, sseEvent{Type: event.EventType(), Data: event}); err != nil {
			s.log.Debug("client disconnected mid-turn", "thread", threadID, "error", err)
			// Keep draining so the workflow goroutine finishes.
		}
	}

	s.appendHistory(threadID, llm.Message{Role: llm.RoleUser, Text: prompt})
	if reply != "" {
		s.appendHistory(threadID, llm.Message{Role: llm.RoleAssistant, Text: reply})
	}
}

// ThreadResponse is the JSON shape of GET /thread/{id}.
type ThreadResponse struct {
	ThreadID string         `json:"thread_id"`
	Current  *scene.State   `json:"current"`
	History  []*scene.State `json:"history,omitempty"`
}

// handleGetThread returns the thread's current scene and lineage, 404 when
// the thread has no recorded scene.
func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "thread_id")
	current := s.store.CurrentForThread(threadID)
	if current == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no scene recorded for thread"})
		return
	}
	writeJSON(w, http.StatusOK, ThreadResponse{
		ThreadID: threadID,
		Current:  current,
		History:  s.store.History(threadID),
	})
}

// GenerateRequest is the body of the one-shot /generate endpoint.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

// GenerateResponse is the synchronous result of a one-shot generation.
type GenerateResponse struct {
	ThreadID  string       `json:"thread_id"`
	Script    string       `json:"script,omitempty"`
	SignedURL string       `json:"signed_url,omitempty"`
	Scene     *scene.State `json:"scene,omitempty"`
	Message   string       `json:"message,omitempty"`
	State     string       `json:"state"`
	Error     string       `json:"error,omitempty"`
}

// handleGenerate runs a full turn on a fresh thread and returns the result
// in one JSON response, for clients that do not consume SSE.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}

	threadID := uuid.New().String()
	resp := GenerateResponse{ThreadID: threadID}

	for event := range s.workflow.ProcessTurn(r.Context(), threadID, req.Prompt, nil) {
		switch e := event.(type) {
		case agent.ScriptEvent:
			resp.Script = e.Script
		case agent.RenderEvent:
			resp.SignedURL = e.SignedURL
		case agent.SceneStateEvent:
			resp.Scene = e.Scene
		case agent.MessageEvent:
			resp.Message = e.Content
		case agent.ErrorEvent:
			resp.Error = e.Error
		case agent.EndEvent:
			resp.State = e.State
		}
	}

	status := http.StatusOK
	if resp.State == agent.StateError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func sendSSEEvent(w http.ResponseWriter, event sseEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
