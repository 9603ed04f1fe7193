package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"

	"trendseer/internal/observability"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresSchema is the setup script shown to operators when the database
// has not been initialised.
func PostgresSchema() string { return postgresSchema }

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the Supabase-backed store. Safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
	db   querier
	log  *observability.Logger
}

func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	return &Postgres{pool: pool, db: pool, log: observability.Component("store.postgres")}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	p.log.Info(ctx, "schema applied")
	return nil
}

func (p *Postgres) UserExists(ctx context.Context, userID string) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "store.user_exists")
	var id string
	err := p.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		observability.EndSpan(span, nil)
		return false, nil
	}
	err = mapPgError(err)
	observability.EndSpan(span, err)
	if err != nil {
		return false, fmt.Errorf("store: user exists: %w", err)
	}
	return true, nil
}

func (p *Postgres) CreateUser(ctx context.Context, userID string) error {
	_, err := p.db.Exec(ctx, `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("store: create user: %w", mapPgError(err))
	}
	return nil
}

func (p *Postgres) ListMemories(ctx context.Context, userID string) ([]Memory, error) {
	ctx, span := observability.StartSpan(ctx, "store.list_memories", attribute.String("user.id", userID))
	rows, err := p.db.Query(ctx, `SELECT id::text, user_id, content, embedding, created_at
		FROM memories WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		err = mapPgError(err)
		observability.EndSpan(span, err)
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var (
			m       Memory
			content []byte
			vec     *pgvector.Vector
		)
		if err := rows.Scan(&m.ID, &m.UserID, &content, &vec, &m.CreatedAt); err != nil {
			observability.EndSpan(span, err)
			return nil, fmt.Errorf("store: scan memory: %w", err)
		}
		m.Content = DecodeContent(content)
		if vec != nil {
			m.Embedding = vec.Slice()
		}
		out = append(out, m)
	}
	err = mapPgError(rows.Err())
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	return out, nil
}

func (p *Postgres) InsertMemory(ctx context.Context, m Memory) (Memory, error) {
	content, err := m.Content.MarshalJSON()
	if err != nil {
		return Memory{}, fmt.Errorf("store: encode memory: %w", err)
	}
	var embedding any
	if len(m.Embedding) > 0 {
		embedding = pgvector.NewVector(m.Embedding)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	err = p.db.QueryRow(ctx, `INSERT INTO memories (user_id, content, embedding, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id::text`,
		m.UserID, content, embedding, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return Memory{}, fmt.Errorf("store: insert memory: %w", mapPgError(err))
	}
	return m, nil
}

// MatchMemories delegates ranking to the match_memories database function so
// the ivfflat index is used.
func (p *Postgres) MatchMemories(ctx context.Context, userID string, embedding []float32, threshold float64, count int) ([]MemoryMatch, error) {
	ctx, span := observability.StartSpan(ctx, "store.match_memories",
		attribute.String("user.id", userID), attribute.Int("match.count", count))
	rows, err := p.db.Query(ctx, `SELECT id::text, content, similarity FROM match_memories($1, $2, $3, $4)`,
		pgvector.NewVector(embedding), threshold, count, userID)
	if err != nil {
		err = mapPgError(err)
		observability.EndSpan(span, err)
		return nil, fmt.Errorf("store: match memories: %w", err)
	}
	defer rows.Close()

	matches := []MemoryMatch{}
	for rows.Next() {
		var (
			m       MemoryMatch
			content []byte
		)
		if err := rows.Scan(&m.ID, &content, &m.Similarity); err != nil {
			observability.EndSpan(span, err)
			return nil, fmt.Errorf("store: scan match: %w", err)
		}
		m.Content = DecodeContent(content)
		matches = append(matches, m)
	}
	err = mapPgError(rows.Err())
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("store: match memories: %w", err)
	}
	return matches, nil
}

func (p *Postgres) CountMemories(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRow(ctx, `SELECT count(*) FROM memories WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count memories: %w", mapPgError(err))
	}
	return n, nil
}

func (p *Postgres) InsertChat(ctx context.Context, e ChatEntry) (ChatEntry, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	err := p.db.QueryRow(ctx, `INSERT INTO chat_history (user_id, user_message, assistant_message, timestamp)
		VALUES ($1, $2, $3, $4) RETURNING id::text`,
		e.UserID, e.UserMessage, e.AssistantMessage, e.Timestamp).Scan(&e.ID)
	if err != nil {
		return ChatEntry{}, fmt.Errorf("store: insert chat: %w", mapPgError(err))
	}
	return e, nil
}

func (p *Postgres) ListChats(ctx context.Context, userID string, limit int) ([]ChatEntry, error) {
	rows, err := p.db.Query(ctx, `SELECT id::text, user_id, user_message, assistant_message, timestamp
		FROM chat_history WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list chats: %w", mapPgError(err))
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ChatEntry, error) {
		var e ChatEntry
		err := row.Scan(&e.ID, &e.UserID, &e.UserMessage, &e.AssistantMessage, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: list chats: %w", mapPgError(err))
	}
	return entries, nil
}

// undefinedTable and undefinedFunction are the SQLSTATEs returned before the
// setup script has been run.
const (
	undefinedTable    = "42P01"
	undefinedFunction = "42883"
)

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case undefinedTable, undefinedFunction:
			return fmt.Errorf("%w: %s", ErrSchemaMissing, pgErr.Message)
		}
	}
	return err
}
