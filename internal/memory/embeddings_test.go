package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"trendseer/internal/store"
)

type fakeEmbedAPI struct {
	dims   int
	err    error
	config *genai.EmbedContentConfig
	model  string
}

func (f *fakeEmbedAPI) EmbedContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.config = cfg
	if f.err != nil {
		return nil, f.err
	}
	resp := &genai.EmbedContentResponse{}
	for range contents {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: make([]float32, f.dims)})
	}
	return resp, nil
}

func TestGeminiEmbedderDefaultModel(t *testing.T) {
	api := &fakeEmbedAPI{dims: store.EmbeddingDims}
	e := newGeminiEmbedder(api, "")

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, store.EmbeddingDims)
	assert.Equal(t, DefaultEmbeddingModel, api.model)
	assert.Equal(t, "SEMANTIC_SIMILARITY", api.config.TaskType)
	assert.Nil(t, api.config.OutputDimensionality)
}

func TestGeminiEmbedderRequestsDims(t *testing.T) {
	api := &fakeEmbedAPI{dims: store.EmbeddingDims}
	e := newGeminiEmbedder(api, "text-embedding-004")

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	require.NotNil(t, api.config.OutputDimensionality)
	assert.EqualValues(t, store.EmbeddingDims, *api.config.OutputDimensionality)
}

func TestGeminiEmbedderRejectsWrongDims(t *testing.T) {
	e := newGeminiEmbedder(&fakeEmbedAPI{dims: 3}, "")
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "has 3 dims")
}

func TestGeminiEmbedderError(t *testing.T) {
	e := newGeminiEmbedder(&fakeEmbedAPI{err: errors.New("quota")}, "")
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "quota")
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	var e HashEmbedder

	a, err := e.Embed(ctx, "Sneaker trends for teens")
	require.NoError(t, err)
	assert.Len(t, a, store.EmbeddingDims)

	b, _ := e.Embed(ctx, "sneaker TRENDS, for teens!")
	assert.InDelta(t, 1.0, store.CosineSimilarity(a, b), 1e-6)

	c, _ := e.Embed(ctx, "quarterly tax filing")
	assert.Less(t, store.CosineSimilarity(a, c), store.CosineSimilarity(a, b))

	empty, err := e.Embed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, store.EmbeddingDims)
}
