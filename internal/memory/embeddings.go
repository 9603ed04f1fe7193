package memory

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"trendseer/internal/store"
)

const (
	DefaultEmbeddingModel = "embedding-001"
	embeddingTaskType     = "SEMANTIC_SIMILARITY"
)

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embedAPI interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder produces store.EmbeddingDims-wide vectors via the Gemini
// embedding endpoint.
type GeminiEmbedder struct {
	api   embedAPI
	model string
}

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	return newGeminiEmbedder(client.Models, model)
}

func newGeminiEmbedder(api embedAPI, model string) *GeminiEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &GeminiEmbedder{api: api, model: model}
}

// Embed generates an embedding vector for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single API call.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: embeddingTaskType}
	// embedding-001 is fixed at 768 dimensions and rejects the parameter
	if strings.TrimPrefix(e.model, "models/") != DefaultEmbeddingModel {
		cfg.OutputDimensionality = genai.Ptr[int32](store.EmbeddingDims)
	}

	resp, err := e.api.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != store.EmbeddingDims {
			n := 0
			if emb != nil {
				n = len(emb.Values)
			}
			return nil, fmt.Errorf("embeddings: vector %d has %d dims, want %d", i, n, store.EmbeddingDims)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
