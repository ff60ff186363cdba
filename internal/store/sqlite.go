package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ashureev/codebot/internal/domain"
	"github.com/ashureev/codebot/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers; busy timeout so writers queue instead of failing.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		extra TEXT,
		conversationId INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_conversations_conversation ON conversations(conversationId, timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendTurn inserts turn. The timestamp is the later of the wall clock and
// one nanosecond past the conversation's newest turn, computed in the same
// statement as the insert so concurrent appends cannot tie.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	if turn == nil {
		return errors.New("append turn: nil turn")
	}
	if !turn.Role.Valid() {
		return fmt.Errorf("append turn: invalid role %q", turn.Role)
	}

	query := `
	INSERT INTO conversations (role, content, extra, conversationId, timestamp)
	SELECT ?, ?, ?, ?, MAX(?, COALESCE(
		(SELECT MAX(timestamp) FROM conversations WHERE conversationId = ?) + 1, 0))
	RETURNING id, timestamp`

	if turn.Extra == "" && turn.Variant != "" {
		turn.Extra = domain.EncodeMeta(domain.TurnMeta{Variant: turn.Variant})
	}
	var extra any
	if turn.Extra != "" {
		extra = turn.Extra
	}

	var id, ts int64
	err := shared.RetryOnConflict(ctx, "append turn", func() error {
		now := time.Now().UnixNano()
		return s.db.QueryRowContext(ctx, query,
			string(turn.Role), turn.Content, extra, turn.ConversationID, now, turn.ConversationID,
		).Scan(&id, &ts)
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	turn.ID = id
	turn.Timestamp = time.Unix(0, ts)
	return nil
}

// ListTurns returns the conversation's turns in replay order.
func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID int64) ([]domain.Turn, error) {
	query := `
		SELECT id, role, content, extra, conversationId, timestamp
		FROM conversations WHERE conversationId = ?
		ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	turns := make([]domain.Turn, 0)
	for rows.Next() {
		var (
			turn  domain.Turn
			role  string
			extra sql.NullString
			ts    int64
		)
		if err := rows.Scan(&turn.ID, &role, &turn.Content, &extra, &turn.ConversationID, &ts); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turn.Role = domain.Role(role)
		turn.Extra = extra.String
		turn.Variant = domain.DecodeMeta(turn.Extra).Variant
		turn.Timestamp = time.Unix(0, ts)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	return turns, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
