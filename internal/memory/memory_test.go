package memory

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendseer/internal/llm"
	"trendseer/internal/prompt"
	"trendseer/internal/store"
)

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
	last  string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	f.last = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeModel struct {
	reply string
	err   error
}

func (f fakeModel) Name() string { return "fake" }

func (f fakeModel) Generate(context.Context, string, llm.GenerateOptions) (string, error) {
	return f.reply, f.err
}

func (f fakeModel) Stream(_ context.Context, _ string, _ llm.GenerateOptions, onChunk func(string) error) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, onChunk(f.reply)
}

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func mem(createdAt time.Time, c store.MemoryContent) store.Memory {
	return store.Memory{UserID: "u1", Content: c, CreatedAt: createdAt}
}

func TestConsolidate(t *testing.T) {
	now := time.Now()
	memories := []store.Memory{
		mem(now, store.MemoryContent{Industries: []string{"fashion"}, Audience: "Gen Z", Trends: []string{"thrifting"}}),
		mem(now.Add(-time.Hour), store.MemoryContent{Industries: []string{"gaming", "fashion"}, Audience: "teens", Goals: "grow reach", Trends: []string{"thrifting", "esports"}}),
		mem(now.Add(-2*time.Hour), store.MemoryContent{Audience: "young professionals", Goals: "grow"}),
	}

	got := Consolidate(memories)
	want := store.UserContext{
		Industries:     []string{"fashion", "gaming"},
		Audience:       "young professionals",
		Goals:          "grow reach",
		PreviousTrends: []string{"thrifting", "esports"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Consolidate mismatch (-want +got):\n%s", diff)
	}
}

func TestConsolidateTieKeepsNewer(t *testing.T) {
	now := time.Now()
	got := Consolidate([]store.Memory{
		mem(now, store.MemoryContent{Goals: "abc"}),
		mem(now.Add(-time.Hour), store.MemoryContent{Goals: "xyz"}),
	})
	assert.Equal(t, "abc", got.Goals)
}

func TestConsolidateCountsRunes(t *testing.T) {
	now := time.Now()
	got := Consolidate([]store.Memory{
		mem(now, store.MemoryContent{Audience: "ééé"}),
		mem(now.Add(-time.Hour), store.MemoryContent{Audience: "abcd"}),
	})
	assert.Equal(t, "abcd", got.Audience)
}

func TestConsolidateEmpty(t *testing.T) {
	got := Consolidate(nil)
	assert.Equal(t, store.EmptyUserContext(), got)
}

func TestGetUserContextCreatesUnknownUser(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, &fakeEmbedder{}, Options{})

	uc := m.GetUserContext(ctx, "new-user")
	assert.Equal(t, store.EmptyUserContext(), uc)

	ok, err := st.UserExists(ctx, "new-user")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateMemoryThenGetUserContext(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	emb := &fakeEmbedder{vec: []float32{1, 0, 0}}
	m := NewManager(st, emb, Options{})

	require.NoError(t, st.CreateUser(ctx, "u1"))
	ok := m.UpdateMemory(ctx, "u1", store.MemoryContent{Industries: []string{"fintech"}, Goals: "launch"})
	require.True(t, ok)
	assert.JSONEq(t, `{"industries":["fintech"],"audience":"","goals":"launch","trends":[]}`, emb.last)

	uc := m.GetUserContext(ctx, "u1")
	assert.Equal(t, []string{"fintech"}, uc.Industries)
	assert.Equal(t, "launch", uc.Goals)
	assert.Equal(t, []string{}, uc.PreviousTrends)
}

func TestUpdateMemoryEmbedFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, &fakeEmbedder{err: errors.New("quota")}, Options{})
	require.NoError(t, st.CreateUser(ctx, "u1"))

	assert.False(t, m.UpdateMemory(ctx, "u1", store.MemoryContent{Goals: "x"}))
	n, err := st.CountMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDisabledManager(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	emb := &fakeEmbedder{vec: []float32{1}}
	m := NewManager(st, emb, Options{Disabled: true})

	assert.Equal(t, store.EmptyUserContext(), m.GetUserContext(ctx, "u1"))
	assert.False(t, m.UpdateMemory(ctx, "u1", store.MemoryContent{Goals: "x"}))
	assert.Empty(t, m.SearchSimilarMemories(ctx, "u1", "q", 5))
	assert.Zero(t, emb.calls)

	ok, err := st.UserExists(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "disabled manager must not touch the store")
}

func TestSearchSimilarMemories(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.CreateUser(ctx, "u1"))
	for _, v := range [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}} {
		_, err := st.InsertMemory(ctx, store.Memory{UserID: "u1", Content: store.MemoryContent{Goals: "g"}, Embedding: v})
		require.NoError(t, err)
	}

	m := NewManager(st, &fakeEmbedder{vec: []float32{1, 0}}, Options{Threshold: 0.5})
	matches := m.SearchSimilarMemories(ctx, "u1", "query", 5)
	require.Len(t, matches, 2)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)

	failing := NewManager(st, &fakeEmbedder{err: errors.New("down")}, Options{})
	assert.Equal(t, []store.MemoryMatch{}, failing.SearchSimilarMemories(ctx, "u1", "query", 5))
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	m := NewManager(st, &fakeEmbedder{vec: []float32{1}}, Options{})

	p, err := m.Profile(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, p.MemoryCount)
	assert.Equal(t, []string{}, p.Profile.Industries)

	require.NoError(t, st.CreateUser(ctx, "u1"))
	require.True(t, m.UpdateMemory(ctx, "u1", store.MemoryContent{Industries: []string{"food"}, Trends: []string{"ramen"}}))
	require.True(t, m.UpdateMemory(ctx, "u1", store.MemoryContent{Audience: "students"}))

	p, err = m.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.MemoryCount)
	assert.Equal(t, []string{"food"}, p.Profile.Industries)
	assert.Equal(t, "students", p.Profile.Audience)
	assert.Equal(t, []string{"ramen"}, p.Profile.Trends)
}

func TestProfileSchemaMissing(t *testing.T) {
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "bare.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := NewManager(st, &fakeEmbedder{}, Options{})
	_, err = m.Profile(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrSchemaMissing)
	assert.Error(t, m.RuntimeSelfCheck(context.Background()))
}

func TestRuntimeSelfCheck(t *testing.T) {
	m := NewManager(newTestStore(t), &fakeEmbedder{}, Options{})
	assert.NoError(t, m.RuntimeSelfCheck(context.Background()))

	var nilManager *Manager
	assert.Error(t, nilManager.RuntimeSelfCheck(context.Background()))
}

func TestSummarize(t *testing.T) {
	messages := []prompt.Message{{Role: "user", Content: "I run a sneaker shop for teens"}}

	tests := []struct {
		name  string
		model fakeModel
		want  store.MemoryContent
	}{
		{
			name:  "fenced json",
			model: fakeModel{reply: "Here you go:\n```json\n{\"industries\":[\"retail\"],\"audience\":\"teens\",\"goals\":\"\",\"trends\":[\"sneakers\"]}\n```"},
			want:  store.MemoryContent{Industries: []string{"retail"}, Audience: "teens", Trends: []string{"sneakers"}},
		},
		{
			name:  "object followed by braced prose",
			model: fakeModel{reply: "Summary: {\"industries\":[\"fintech\"],\"audience\":\"Gen Z\",\"goals\":\"grow\",\"trends\":[\"bnpl\"]}\nTip: swap {brand} for your name."},
			want:  store.MemoryContent{Industries: []string{"fintech"}, Audience: "Gen Z", Goals: "grow", Trends: []string{"bnpl"}},
		},
		{
			name:  "wrong field types",
			model: fakeModel{reply: `{"industries":"retail","audience":"teens"}`},
			want:  store.MemoryContent{Audience: "teens"},
		},
		{
			name:  "no json",
			model: fakeModel{reply: "I could not summarize that."},
		},
		{
			name:  "model error",
			model: fakeModel{err: errors.New("boom")},
		},
		{
			name:  "blank reply",
			model: fakeModel{reply: "   "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSummarizer(tt.model, prompt.Default())
			got := s.Summarize(context.Background(), messages)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	memories := []store.Memory{
		{ID: "b", UserID: "u1", Content: store.MemoryContent{Goals: "second"}, Embedding: []float32{0, 1}, CreatedAt: created.Add(time.Minute)},
		{ID: "a", UserID: "u1", Content: store.MemoryContent{Industries: []string{"food"}}, Embedding: []float32{1, 0}, CreatedAt: created},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, memories))

	got, err := Import(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID, "import is oldest first")
	assert.Equal(t, []string{"food"}, got[0].Content.Industries)
	assert.Equal(t, []float32{0, 1}, got[1].Embedding)
	assert.True(t, got[1].CreatedAt.Equal(created.Add(time.Minute)))
}

func TestArchiveSnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	archive, err := NewArchive(t.TempDir())
	require.NoError(t, err)

	path, err := archive.Latest("u1")
	require.NoError(t, err)
	assert.Empty(t, path)

	memories := []store.Memory{{UserID: "u1", Content: store.MemoryContent{Goals: "g"}, Embedding: []float32{1, 0}, CreatedAt: time.Now()}}
	written, err := archive.Snapshot("u1", memories)
	require.NoError(t, err)

	latest, err := archive.Latest("u1")
	require.NoError(t, err)
	assert.Equal(t, written, latest)

	loaded, err := ReadFile(latest)
	require.NoError(t, err)

	st := newTestStore(t)
	m := NewManager(st, &fakeEmbedder{}, Options{})
	n, err := m.Restore(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := st.CountMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "user-1", safeName("user/1"))
	assert.Equal(t, "unknown", safeName(""))
}

// failingStore wraps a working store and fails selected lookups.
type failingStore struct {
	store.Store
	existsErr error
	listErr   error
	created   []string
}

func (f *failingStore) UserExists(ctx context.Context, userID string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.Store.UserExists(ctx, userID)
}

func (f *failingStore) CreateUser(ctx context.Context, userID string) error {
	f.created = append(f.created, userID)
	return f.Store.CreateUser(ctx, userID)
}

func (f *failingStore) ListMemories(ctx context.Context, userID string) ([]store.Memory, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListMemories(ctx, userID)
}

func TestGetUserContextLookupErrorCreatesUser(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Store: newTestStore(t), existsErr: errors.New("connection reset")}
	m := NewManager(st, &fakeEmbedder{}, Options{})

	uc := m.GetUserContext(ctx, "u1")
	assert.Equal(t, store.EmptyUserContext(), uc)
	assert.Equal(t, []string{"u1"}, st.created)
}

func TestGetUserContextListErrorIsEmpty(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	require.NoError(t, base.CreateUser(ctx, "u1"))
	_, err := base.InsertMemory(ctx, store.Memory{
		UserID:    "u1",
		Content:   store.MemoryContent{Industries: []string{"fashion"}},
		Embedding: []float32{1, 0, 0},
	})
	require.NoError(t, err)

	st := &failingStore{Store: base, listErr: errors.New("statement timeout")}
	m := NewManager(st, &fakeEmbedder{}, Options{})

	uc := m.GetUserContext(ctx, "u1")
	assert.Equal(t, store.EmptyUserContext(), uc)
	assert.Empty(t, st.created)
}
