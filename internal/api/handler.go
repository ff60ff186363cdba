// Package api provides HTTP handlers for the Codebot API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/codebot/internal/conversation"
	"github.com/ashureev/codebot/internal/domain"
	"github.com/ashureev/codebot/internal/store"
)

const maxBodyBytes = 1 << 20

// Submitter runs one question end to end.
type Submitter interface {
	Submit(ctx context.Context, conversationID int64, content string) error
}

// Info is the public server configuration returned by GET /api/config.
type Info struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	MaxAttempts int    `json:"maxAttempts"`
}

// Handler serves conversation history, question submission and status endpoints.
type Handler struct {
	repo      store.Repository
	submitter Submitter
	info      Info

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, submitter Submitter, info Info) *Handler {
	return &Handler{
		repo:      repo,
		submitter: submitter,
		info:      info,
	}
}

// RegisterRoutes registers API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/health", h.GetHealth)
		r.Post("/conversation", h.FetchConversation)
		r.With(conversation.Middleware).Get("/conversations/{id}", h.GetConversation)
		r.With(conversation.Middleware).Post("/conversations/{id}/questions", h.PostQuestion)
	})
}

// Wait stops accepting questions and blocks until every submission started
// over HTTP has finished or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// historyEntry is the wire shape of one turn in a history response.
type historyEntry struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
	Extra   *string     `json:"extra"`
}

type historyResponse struct {
	ConversationHistory []historyEntry `json:"conversationHistory"`
}

// GetConfig returns the server configuration for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.info)
}

// GetHealth reports whether the conversation store is reachable.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		slog.Error("Health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
}

// GetConversation returns the ordered history of the conversation named in the path.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	h.writeHistory(w, r, conversation.IDFromContext(r.Context()))
}

// FetchConversation returns history for the conversationId in the JSON body.
// A missing body or id selects the default conversation.
func (h *Handler) FetchConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID *int64 `json:"conversationId"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := domain.DefaultConversationID
	if req.ConversationID != nil {
		if *req.ConversationID <= 0 {
			Error(w, http.StatusBadRequest, conversation.ErrInvalidID.Error())
			return
		}
		id = *req.ConversationID
	}
	h.writeHistory(w, r, id)
}

// PostQuestion accepts a question and runs it in the background. Results are
// delivered on the conversation's event channel.
func (h *Handler) PostQuestion(w http.ResponseWriter, r *http.Request) {
	conversationID := conversation.IDFromContext(r.Context())

	var req struct {
		Content string `json:"content"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusBadRequest, "question is empty")
		return
	}

	if !h.track() {
		Error(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		defer h.inflight.Done()
		if err := h.submitter.Submit(ctx, conversationID, req.Content); err != nil {
			slog.Warn("Submission ended with error", "conversation_id", conversationID, "error", err)
		}
	}()

	JSON(w, http.StatusAccepted, map[string]interface{}{
		"conversationId": conversationID,
		"status":         "accepted",
	})
}

func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.inflight.Add(1)
	return true
}

func (h *Handler) writeHistory(w http.ResponseWriter, r *http.Request, conversationID int64) {
	turns, err := h.repo.ListTurns(r.Context(), conversationID)
	if err != nil {
		slog.Error("Failed to load conversation", "conversation_id", conversationID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	resp := historyResponse{ConversationHistory: make([]historyEntry, 0, len(turns))}
	for _, t := range turns {
		entry := historyEntry{Role: t.Role, Content: t.Content}
		if t.Extra != "" {
			extra := t.Extra
			entry.Extra = &extra
		}
		resp.ConversationHistory = append(resp.ConversationHistory, entry)
	}
	JSON(w, http.StatusOK, resp)
}
