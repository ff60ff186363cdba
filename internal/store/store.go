// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/codebot/internal/domain"
)

// Repository persists conversation turns.
type Repository interface {
	// AppendTurn inserts a turn and fills in its ID and Timestamp. Timestamps
	// are strictly increasing within a conversation.
	AppendTurn(ctx context.Context, turn *domain.Turn) error

	// ListTurns returns every turn of a conversation ordered by timestamp then id.
	// An unknown conversation yields an empty slice.
	ListTurns(ctx context.Context, conversationID int64) ([]domain.Turn, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
