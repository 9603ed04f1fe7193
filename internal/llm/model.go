// Package llm wraps the text-generation backends used by the chat and trend
// analysis flows.
package llm

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("llm: empty response")

// Model is any text-generation backend.
type Model interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	// Stream delivers text chunks to onChunk as they arrive and returns the
	// full reply. An error from onChunk aborts the stream.
	Stream(ctx context.Context, prompt string, opts GenerateOptions, onChunk func(string) error) (string, error)
	Name() string
}

// GenerateOptions are sampling knobs. Zero values leave the backend default.
type GenerateOptions struct {
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// SimpleChatOptions is the configuration of the non-streaming chat path.
var SimpleChatOptions = GenerateOptions{
	Temperature:     0.7,
	TopP:            0.8,
	TopK:            40,
	MaxOutputTokens: 2048,
}
