package memory

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"trendseer/internal/store"
)

// HashEmbedder is an offline embedder for development: each lowercased word
// is hashed into one of store.EmbeddingDims buckets and the vector is L2
// normalised. Texts sharing words get positive similarity.
type HashEmbedder struct{}

func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, store.EmbeddingDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%store.EmbeddingDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
