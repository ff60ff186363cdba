package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/ashureev/codebot/internal/conversation"
)

const (
	writeTimeout = 10 * time.Second
	// pendingSubmissions bounds questions queued behind the one being processed.
	pendingSubmissions = 4
)

// Submitter runs one question end to end.
type Submitter interface {
	Submit(ctx context.Context, conversationID int64, content string) error
}

// HandlerConfig tunes the socket endpoint.
type HandlerConfig struct {
	// OriginPatterns are passed to websocket.Accept. Empty allows same-origin only.
	OriginPatterns []string
	// SubmitLimit questions are allowed per SubmitWindow per connection. Zero disables limiting.
	SubmitLimit  int
	SubmitWindow time.Duration
}

// Handler serves the event socket.
type Handler struct {
	hub       *Hub
	submitter Submitter
	cfg       HandlerConfig

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// NewHandler creates a socket handler publishing through hub.
func NewHandler(hub *Hub, submitter Submitter, cfg HandlerConfig) *Handler {
	return &Handler{hub: hub, submitter: submitter, cfg: cfg}
}

// Wait stops accepting submissions and blocks until every accepted one has
// finished or ctx is done. Idle connections do not hold it up.
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

// track registers one queued submission. It fails once Wait has been called.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.inflight.Add(1)
	return true
}

func (h *Handler) newLimiter() *rate.Limiter {
	if h.cfg.SubmitLimit <= 0 || h.cfg.SubmitWindow <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	every := h.cfg.SubmitWindow / time.Duration(h.cfg.SubmitLimit)
	return rate.NewLimiter(rate.Every(every), h.cfg.SubmitLimit)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := conversation.IDFromContext(r.Context())
	slog.Info("WebSocket connection request", "conversation_id", conversationID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "conversation_id", conversationID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "conversation_id", conversationID)
		}
	}()

	sub, err := h.hub.Subscribe(conversationID)
	if err != nil {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := writeJSON(ctx, ws, Welcome()); err != nil {
		slog.Debug("Failed to send welcome", "error", err, "subscriber_id", sub.ID)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	// Output loop: hub -> WebSocket.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, sub)
	}()

	jobs := make(chan string, pendingSubmissions)
	// Submissions outlive the connection; a closed tab does not abort a run.
	go h.submitLoop(context.WithoutCancel(ctx), conversationID, jobs)

	h.inputLoop(ctx, ws, sub, jobs)
	close(jobs)
	cancel()
	wg.Wait()
	slog.Info("WebSocket session ended", "conversation_id", conversationID, "subscriber_id", sub.ID)
}

func (h *Handler) outputLoop(ctx context.Context, ws *websocket.Conn, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeJSON(ctx, ws, ev); err != nil {
				slog.Debug("WebSocket write error", "error", err, "subscriber_id", sub.ID)
				return
			}
		}
	}
}

func (h *Handler) inputLoop(ctx context.Context, ws *websocket.Conn, sub *Subscription, jobs chan<- string) {
	limiter := h.newLimiter()
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "subscriber_id", sub.ID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "subscriber_id", sub.ID)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.reply(ctx, ws, Error("Malformed message"))
			continue
		}

		switch frame.Name {
		case EventSubmitQuestion:
			var q SubmitQuestion
			if err := json.Unmarshal(frame.Data, &q); err != nil {
				h.reply(ctx, ws, Error("Malformed question"))
				continue
			}
			if strings.TrimSpace(q.Content) == "" {
				h.reply(ctx, ws, Error("Question is empty"))
				continue
			}
			if !limiter.Allow() {
				slog.Warn("Submit rate limit exceeded", "subscriber_id", sub.ID, "conversation_id", sub.ConversationID)
				h.reply(ctx, ws, Error("Too many questions, please slow down"))
				continue
			}
			if !h.track() {
				h.reply(ctx, ws, Error("Server is shutting down, please try again later"))
				continue
			}
			select {
			case jobs <- q.Content:
			default:
				h.inflight.Done()
				h.reply(ctx, ws, Error("Still working on earlier questions, please wait"))
			}
		default:
			slog.Debug("Ignoring unknown event", "event", frame.Name, "subscriber_id", sub.ID)
		}
	}
}

// submitLoop runs this connection's questions one at a time, in order.
func (h *Handler) submitLoop(ctx context.Context, conversationID int64, jobs <-chan string) {
	for content := range jobs {
		if err := h.submitter.Submit(ctx, conversationID, content); err != nil {
			slog.Warn("Submission failed", "conversation_id", conversationID, "error", err)
		}
		h.inflight.Done()
	}
}

// reply sends an event to this connection only.
func (h *Handler) reply(ctx context.Context, ws *websocket.Conn, ev Event) {
	if err := writeJSON(ctx, ws, ev); err != nil {
		slog.Debug("Failed to send reply", "event", ev.Name, "error", err)
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
