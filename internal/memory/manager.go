package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"trendseer/internal/observability"
	"trendseer/internal/store"
)

const DefaultThreshold = 0.7

type Options struct {
	// Threshold is the minimum cosine similarity for SearchSimilarMemories.
	Threshold float64
	// Disabled turns reads into empty contexts and writes into no-ops.
	Disabled bool
}

// Manager ties together storage, embeddings and consolidation. Read paths
// never fail the caller: problems are logged and an empty context returned.
type Manager struct {
	store     store.Store
	embedder  Embedder
	threshold float64
	disabled  bool
	log       *observability.Logger
}

func NewManager(st store.Store, embedder Embedder, opts Options) *Manager {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Manager{
		store:     st,
		embedder:  embedder,
		threshold: opts.Threshold,
		disabled:  opts.Disabled,
		log:       observability.Component("memory"),
	}
}

// GetUserContext loads and consolidates the user's memories. Unknown users
// are created on first sight and start with an empty context.
func (m *Manager) GetUserContext(ctx context.Context, userID string) store.UserContext {
	if m.disabled {
		return store.EmptyUserContext()
	}
	ctx, span := observability.StartSpan(ctx, "memory.get_user_context", attribute.String("user.id", userID))
	defer span.End()

	exists, err := m.store.UserExists(ctx, userID)
	if err != nil || !exists {
		if err != nil {
			m.log.Warn(ctx, "user lookup failed, creating user", "error", err)
		}
		if err := m.store.CreateUser(ctx, userID); err != nil {
			m.log.Error(ctx, "create user failed", "error", err)
		}
		return store.EmptyUserContext()
	}

	memories, err := m.store.ListMemories(ctx, userID)
	if err != nil {
		m.log.Error(ctx, "error fetching memories", "error", err)
		return store.EmptyUserContext()
	}
	if len(memories) == 0 {
		return store.EmptyUserContext()
	}

	uc := Consolidate(memories)
	span.SetAttributes(attribute.Int("memory.count", len(memories)))
	m.log.Debug(ctx, "user context consolidated", "memories", len(memories), "industries", len(uc.Industries), "trends", len(uc.PreviousTrends))
	return uc
}

// UpdateMemory embeds the JSON form of content and stores it. It reports
// whether the memory was saved.
func (m *Manager) UpdateMemory(ctx context.Context, userID string, content store.MemoryContent) bool {
	if m.disabled {
		return false
	}
	ctx, span := observability.StartSpan(ctx, "memory.update", attribute.String("user.id", userID))
	defer span.End()

	raw, err := json.Marshal(content)
	if err != nil {
		m.log.Error(ctx, "error encoding memory", "error", err)
		return false
	}
	embedding, err := m.embedder.Embed(ctx, string(raw))
	if err != nil {
		m.log.Error(ctx, "error embedding memory", "error", err)
		return false
	}
	if _, err := m.store.InsertMemory(ctx, store.Memory{UserID: userID, Content: content, Embedding: embedding}); err != nil {
		m.log.Error(ctx, "error updating memory", "error", err)
		return false
	}
	m.log.Info(ctx, "memory saved", "industries", len(content.Industries), "trends", len(content.Trends))
	return true
}

// SearchSimilarMemories returns up to limit memories similar to query.
// Errors yield an empty slice.
func (m *Manager) SearchSimilarMemories(ctx context.Context, userID, query string, limit int) []store.MemoryMatch {
	if m.disabled {
		return []store.MemoryMatch{}
	}
	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.log.Error(ctx, "error embedding query", "error", err)
		return []store.MemoryMatch{}
	}
	matches, err := m.store.MatchMemories(ctx, userID, embedding, m.threshold, limit)
	if err != nil {
		m.log.Error(ctx, "error searching memories", "error", err)
		return []store.MemoryMatch{}
	}
	return matches
}

type ProfileData struct {
	Industries []string `json:"industries"`
	Audience   string   `json:"audience"`
	Goals      string   `json:"goals"`
	Trends     []string `json:"trends"`
}

type Profile struct {
	Profile     ProfileData `json:"profile"`
	MemoryCount int         `json:"memoryCount"`
}

// Profile summarises what is known about the user. Unlike GetUserContext
// it reports store errors, including store.ErrSchemaMissing, and never
// creates the user.
func (m *Manager) Profile(ctx context.Context, userID string) (Profile, error) {
	empty := Profile{Profile: ProfileData{Industries: []string{}, Trends: []string{}}}
	if m.disabled {
		return empty, nil
	}
	exists, err := m.store.UserExists(ctx, userID)
	if err != nil {
		return empty, fmt.Errorf("memory: profile: %w", err)
	}
	if !exists {
		return empty, nil
	}
	memories, err := m.store.ListMemories(ctx, userID)
	if err != nil {
		return empty, fmt.Errorf("memory: profile: %w", err)
	}
	uc := Consolidate(memories)
	return Profile{
		Profile: ProfileData{
			Industries: uc.Industries,
			Audience:   uc.Audience,
			Goals:      uc.Goals,
			Trends:     uc.PreviousTrends,
		},
		MemoryCount: len(memories),
	}, nil
}

// Memories returns the raw memories of a user, newest first.
func (m *Manager) Memories(ctx context.Context, userID string) ([]store.Memory, error) {
	return m.store.ListMemories(ctx, userID)
}

// Restore inserts archived memories, creating their users as needed, and
// returns how many were written. Embeddings are kept as archived.
func (m *Manager) Restore(ctx context.Context, memories []store.Memory) (int, error) {
	created := map[string]bool{}
	n := 0
	for _, mem := range memories {
		if mem.UserID == "" {
			return n, fmt.Errorf("memory: restore: memory %s has no user", mem.ID)
		}
		if !created[mem.UserID] {
			if err := m.store.CreateUser(ctx, mem.UserID); err != nil {
				return n, fmt.Errorf("memory: restore: %w", err)
			}
			created[mem.UserID] = true
		}
		mem.ID = ""
		if _, err := m.store.InsertMemory(ctx, mem); err != nil {
			return n, fmt.Errorf("memory: restore: %w", err)
		}
		n++
	}
	return n, nil
}

// RuntimeSelfCheck verifies the store is reachable and migrated. It makes no
// model calls so startup checks stay fast.
func (m *Manager) RuntimeSelfCheck(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("memory runtime self-check: manager is nil")
	}
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("memory runtime self-check: %w", err)
	}
	if _, err := m.store.CountMemories(ctx, "self-check"); err != nil {
		if errors.Is(err, store.ErrSchemaMissing) {
			return fmt.Errorf("memory runtime self-check: run the setup script: %w", err)
		}
		return fmt.Errorf("memory runtime self-check: store unreadable: %w", err)
	}
	return nil
}
