package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"trendseer/internal/observability"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// timeLayout sorts lexicographically, which the ORDER BY clauses rely on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite is the single-file development store. Similarity search runs in
// process over the user's memories.
type SQLite struct {
	db  *sql.DB
	log *observability.Logger
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for throwaway stores.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return &SQLite{db: db, log: observability.Component("store.sqlite")}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	s.log.Debug(ctx, "schema applied")
	return nil
}

func (s *SQLite) UserExists(ctx context.Context, userID string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: user exists: %w", mapSQLiteError(err))
	}
	return true, nil
}

func (s *SQLite) CreateUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`,
		userID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: create user: %w", mapSQLiteError(err))
	}
	return nil
}

func (s *SQLite) ListMemories(ctx context.Context, userID string) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, content, embedding, created_at
		FROM memories WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list memories: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var (
			m         Memory
			content   string
			embedding sql.NullString
			created   string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &content, &embedding, &created); err != nil {
			return nil, fmt.Errorf("store: scan memory: %w", err)
		}
		m.Content = DecodeContent([]byte(content))
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &m.Embedding); err != nil {
				s.log.Warn(ctx, "skipping malformed embedding", "memory_id", m.ID, "error", err)
			}
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	return out, nil
}

func (s *SQLite) InsertMemory(ctx context.Context, m Memory) (Memory, error) {
	content, err := m.Content.MarshalJSON()
	if err != nil {
		return Memory{}, fmt.Errorf("store: encode memory: %w", err)
	}
	var embedding any
	if len(m.Embedding) > 0 {
		raw, err := json.Marshal(m.Embedding)
		if err != nil {
			return Memory{}, fmt.Errorf("store: encode embedding: %w", err)
		}
		embedding = string(raw)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO memories (id, user_id, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)`, m.ID, m.UserID, string(content), embedding, formatTime(m.CreatedAt))
	if err != nil {
		return Memory{}, fmt.Errorf("store: insert memory: %w", mapSQLiteError(err))
	}
	return m, nil
}

func (s *SQLite) MatchMemories(ctx context.Context, userID string, embedding []float32, threshold float64, count int) ([]MemoryMatch, error) {
	memories, err := s.ListMemories(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rankMatches(memories, embedding, threshold, count), nil
}

func (s *SQLite) CountMemories(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM memories WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count memories: %w", mapSQLiteError(err))
	}
	return n, nil
}

func (s *SQLite) InsertChat(ctx context.Context, e ChatEntry) (ChatEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO chat_history (id, user_id, user_message, assistant_message, timestamp)
		VALUES (?, ?, ?, ?, ?)`, e.ID, e.UserID, e.UserMessage, e.AssistantMessage, formatTime(e.Timestamp))
	if err != nil {
		return ChatEntry{}, fmt.Errorf("store: insert chat: %w", mapSQLiteError(err))
	}
	return e, nil
}

func (s *SQLite) ListChats(ctx context.Context, userID string, limit int) ([]ChatEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, user_message, assistant_message, timestamp
		FROM chat_history WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list chats: %w", mapSQLiteError(err))
	}
	defer rows.Close()

	var out []ChatEntry
	for rows.Next() {
		var (
			e  ChatEntry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserMessage, &e.AssistantMessage, &ts); err != nil {
			return nil, fmt.Errorf("store: scan chat: %w", err)
		}
		e.Timestamp = parseTime(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list chats: %w", err)
	}
	return out, nil
}

func mapSQLiteError(err error) error {
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %v", ErrSchemaMissing, err)
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
