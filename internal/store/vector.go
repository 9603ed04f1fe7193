package store

import (
	"math"
	"sort"
)

// rankMatches scores memories against the query embedding the way the
// match_memories function does: keep similarity > threshold, order by
// similarity descending, cap at count.
func rankMatches(memories []Memory, query []float32, threshold float64, count int) []MemoryMatch {
	matches := make([]MemoryMatch, 0, len(memories))
	for _, m := range memories {
		if len(m.Embedding) == 0 {
			continue
		}
		sim := CosineSimilarity(query, m.Embedding)
		if sim <= threshold {
			continue
		}
		matches = append(matches, MemoryMatch{ID: m.ID, Content: m.Content, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if count >= 0 && len(matches) > count {
		matches = matches[:count]
	}
	return matches
}

// CosineSimilarity returns 0 for mismatched or zero-length vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
