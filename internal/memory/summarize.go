package memory

import (
	"context"
	"encoding/json"
	"strings"

	"trendseer/internal/llm"
	"trendseer/internal/observability"
	"trendseer/internal/prompt"
	"trendseer/internal/store"
)

// Summarizer extracts industries, audience, goals and trends from a
// conversation with the model.
type Summarizer struct {
	model   llm.Model
	prompts prompt.Source
	log     *observability.Logger
}

func NewSummarizer(model llm.Model, prompts prompt.Source) *Summarizer {
	return &Summarizer{model: model, prompts: prompts, log: observability.Component("memory.summarize")}
}

// Summarize never fails; anything unusable yields an empty summary.
func (s *Summarizer) Summarize(ctx context.Context, messages []prompt.Message) store.MemoryContent {
	text, err := s.model.Generate(ctx, s.prompts.Current().BuildSummaryPrompt(messages), llm.GenerateOptions{})
	if err != nil {
		s.log.Warn(ctx, "summary generation failed", "error", err)
		return store.MemoryContent{}
	}
	if strings.TrimSpace(text) == "" {
		s.log.Warn(ctx, "empty response from summarization")
		return store.MemoryContent{}
	}

	candidate, ok := llm.ExtractJSON(text)
	if !ok {
		s.log.Warn(ctx, "summary contained no JSON", "response_len", len(text))
		return store.MemoryContent{}
	}
	if !json.Valid([]byte(candidate)) {
		s.log.Warn(ctx, "summary JSON did not parse", "response_len", len(text))
		return store.MemoryContent{}
	}
	return store.DecodeContent([]byte(candidate))
}
