// Package conversation resolves the conversation a request refers to.
package conversation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/codebot/internal/domain"
)

const (
	// QueryParam names the query-string parameter used by the socket endpoint.
	QueryParam = "conversationId"
	// URLParam names the chi route parameter used by REST routes.
	URLParam = "id"
)

// ErrInvalidID is returned for identifiers that are not positive integers.
var ErrInvalidID = errors.New("invalid conversation id")

type contextKey int

const idKey contextKey = iota

// IDFromContext extracts the conversation ID from the request context.
func IDFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(idKey).(int64); ok {
		return v
	}
	return domain.DefaultConversationID
}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// Parse converts a raw identifier. Blank input means the default conversation.
func Parse(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DefaultConversationID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

func idFromRequest(r *http.Request) string {
	if raw := chi.URLParam(r, URLParam); raw != "" {
		return raw
	}
	return r.URL.Query().Get(QueryParam)
}

// Middleware injects the conversation ID taken from the route or query string.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := Parse(idFromRequest(r))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"invalid conversation id"}`, http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
