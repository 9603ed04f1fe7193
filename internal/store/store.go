// Package store persists users, memories and chat history. Postgres (the
// Supabase database with pgvector) is the production backend; SQLite serves
// local development and tests.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrSchemaMissing means the tables or the match_memories function have
	// not been created yet. Callers surface it as "run the setup script".
	ErrSchemaMissing = errors.New("store: schema missing")
)

// EmbeddingDims is the vector width of the memories.embedding column.
const EmbeddingDims = 768

type User struct {
	ID        string
	CreatedAt time.Time
}

type Memory struct {
	ID        string
	UserID    string
	Content   MemoryContent
	Embedding []float32
	CreatedAt time.Time
}

type ChatEntry struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	Timestamp        time.Time `json:"timestamp"`
}

type MemoryMatch struct {
	ID         string        `json:"id"`
	Content    MemoryContent `json:"content"`
	Similarity float64       `json:"similarity"`
}

type Store interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	CreateUser(ctx context.Context, userID string) error
	// ListMemories returns every memory of the user, newest first.
	ListMemories(ctx context.Context, userID string) ([]Memory, error)
	InsertMemory(ctx context.Context, m Memory) (Memory, error)
	// MatchMemories returns memories with cosine similarity strictly above
	// threshold, most similar first, at most count rows.
	MatchMemories(ctx context.Context, userID string, embedding []float32, threshold float64, count int) ([]MemoryMatch, error)
	CountMemories(ctx context.Context, userID string) (int, error)
	InsertChat(ctx context.Context, e ChatEntry) (ChatEntry, error)
	// ListChats returns at most limit entries of the user, newest first.
	ListChats(ctx context.Context, userID string, limit int) ([]ChatEntry, error)
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
