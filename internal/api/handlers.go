package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jpoliachik/jpos-agent/internal/agent"
	"github.com/jpoliachik/jpos-agent/internal/vault"
)

// AgentService is the orchestration surface the handlers call into.
type AgentService interface {
	Handle(ctx context.Context, externalID, prompt, systemContext string, onProgress func(agent.ProgressEvent)) (string, error)
}

// NoteAppender is the vault write surface used by the voice-note endpoint.
type NoteAppender interface {
	AppendEntry(ctx context.Context, e vault.Entry) (vault.AppendResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc   AgentService
	notes NoteAppender
}

// NewHandler creates a new Handler.
func NewHandler(svc AgentService, notes NoteAppender) *Handler {
	return &Handler{svc: svc, notes: notes}
}

type agentRequest struct {
	Prompt   string `json:"prompt"`
	ClientID string `json:"clientId"`
	Context  string `json:"context"`
}

type agentResponse struct {
	Result string `json:"result"`
}

// Agent handles POST /agent: one prompt for the agent runtime, keyed to the
// caller's client id for session continuity.
func (h *Handler) Agent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("prompt is required"))
		return
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = "default"
	}
	externalID := "api:" + clientID

	result, err := h.svc.Handle(r.Context(), externalID, req.Prompt, req.Context, nil)
	if err != nil {
		slog.Error("agent request failed", slog.String("external_id", externalID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, agentResponse{Result: result})
}

type voiceNoteRequest struct {
	Transcript string  `json:"transcript"`
	Timestamp  string  `json:"timestamp"`
	Duration   float64 `json:"duration"`
	MessageID  string  `json:"messageId"`
}

type voiceNoteResponse struct {
	Result    string `json:"result,omitempty"`
	NotePath  string `json:"notePath"`
	Duplicate bool   `json:"duplicate"`
}

// VoiceNote handles POST /voice-note: the transcript lands in the vault's
// dated note file first, then the agent extracts action items. A repeated
// messageId is a recognized duplicate delivery: the entry is not re-written
// and no agent run happens.
func (h *Handler) VoiceNote(w http.ResponseWriter, r *http.Request) {
	var req voiceNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Transcript == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("transcript is required"))
		return
	}

	res, err := h.notes.AppendEntry(r.Context(), vault.Entry{
		Transcript: req.Transcript,
		Timestamp:  req.Timestamp,
		Duration:   req.Duration,
		DedupID:    req.MessageID,
	})
	if err != nil {
		slog.Error("voice note append failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, voiceNoteResponse{NotePath: res.Path, Duplicate: true})
		return
	}

	systemContext := voiceNoteContext(req.Timestamp)
	result, err := h.svc.Handle(r.Context(), "api:voice-notes", req.Transcript, systemContext, nil)
	if err != nil {
		slog.Error("voice note agent run failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, voiceNoteResponse{Result: result, NotePath: res.Path})
}

func voiceNoteContext(timestamp string) string {
	if timestamp == "" {
		timestamp = "now"
	}
	return fmt.Sprintf(`You are processing a voice journal entry from %s.
Analyze this transcript and:
1. Identify any actionable items or tasks mentioned
2. Create Todoist tasks for any action items
3. Summarize key insights or reflections
4. Note any follow-ups needed

Be concise in your response.`, timestamp)
}
