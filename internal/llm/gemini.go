package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"

	"trendseer/internal/observability"
)

// contentAPI is the slice of *genai.Models this package uses.
type contentAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Gemini implements Model over the Gemini API.
type Gemini struct {
	api        contentAPI
	model      string
	retryDelay time.Duration
	log        *observability.Logger
}

// NewGeminiClient creates the shared genai client. baseURL is only set in
// tests and proxies.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return client, nil
}

func NewGemini(client *genai.Client, model string) *Gemini {
	return newGemini(client.Models, model)
}

func newGemini(api contentAPI, model string) *Gemini {
	if model == "" {
		model = "gemini-1.5-pro"
	}
	return &Gemini{
		api:        api,
		model:      model,
		retryDelay: 500 * time.Millisecond,
		log:        observability.Component("llm.gemini"),
	}
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm.generate",
		attribute.String("llm.model", g.model), attribute.Int("llm.prompt_len", len(prompt)))
	start := time.Now()

	resp, err := g.api.GenerateContent(ctx, g.model, genai.Text(prompt), opts.config())
	if err != nil {
		observability.EndSpan(span, err)
		g.log.Warn(ctx, "gemini generate failed", "model", g.model, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		observability.EndSpan(span, ErrEmptyResponse)
		return "", ErrEmptyResponse
	}
	observability.EndSpan(span, nil)
	g.log.Info(ctx, "gemini generate done", "model", g.model, "duration_ms", time.Since(start).Milliseconds(), "response_len", len(text))
	return text, nil
}

// Stream retries once when the stream fails with a transient error before
// producing any text, then falls back to a single non-streaming call. Once
// text has been delivered a failure is returned as is; partial output is
// never replayed.
func (g *Gemini) Stream(ctx context.Context, prompt string, opts GenerateOptions, onChunk func(string) error) (string, error) {
	ctx, span := observability.StartSpan(ctx, "llm.stream",
		attribute.String("llm.model", g.model), attribute.Int("llm.prompt_len", len(prompt)))
	start := time.Now()

	emitted := false
	reply, err := backoff.Retry(ctx, func() (string, error) {
		text, n, err := g.streamOnce(ctx, prompt, opts, onChunk)
		if n > 0 {
			emitted = true
		}
		if err == nil {
			return text, nil
		}
		if n > 0 || !isTransient(err) {
			return text, backoff.Permanent(err)
		}
		g.log.Warn(ctx, "gemini stream failed before first chunk, retrying", "model", g.model, "error", err)
		return "", err
	}, backoff.WithBackOff(backoff.NewConstantBackOff(g.retryDelay)), backoff.WithMaxTries(2))

	if err != nil && !emitted && ctx.Err() == nil && !errors.Is(err, errCallback) {
		g.log.Warn(ctx, "gemini stream unavailable, falling back to generate", "model", g.model, "error", err)
		reply, err = g.Generate(ctx, prompt, opts)
		if err == nil {
			err = onChunk(reply)
		}
	}

	observability.EndSpan(span, err)
	if err != nil {
		return reply, unwrapCallback(err)
	}
	g.log.Info(ctx, "gemini stream done", "model", g.model, "duration_ms", time.Since(start).Milliseconds(), "response_len", len(reply))
	return reply, nil
}

// errCallback marks errors raised by the caller's onChunk so they are not
// mistaken for backend failures.
var errCallback = errors.New("llm: chunk callback failed")

type callbackError struct{ err error }

func (e *callbackError) Error() string   { return e.err.Error() }
func (e *callbackError) Unwrap() []error { return []error{errCallback, e.err} }

func unwrapCallback(err error) error {
	var cb *callbackError
	if errors.As(err, &cb) {
		return cb.err
	}
	return err
}

func (g *Gemini) streamOnce(ctx context.Context, prompt string, opts GenerateOptions, onChunk func(string) error) (string, int, error) {
	var (
		out    strings.Builder
		chunks int
	)
	for resp, err := range g.api.GenerateContentStream(ctx, g.model, genai.Text(prompt), opts.config()) {
		if err != nil {
			return out.String(), chunks, fmt.Errorf("llm: stream: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		chunks++
		out.WriteString(text)
		if err := onChunk(text); err != nil {
			return out.String(), chunks, &callbackError{err: err}
		}
	}
	if chunks == 0 {
		return "", 0, ErrEmptyResponse
	}
	return out.String(), chunks, nil
}

func (o GenerateOptions) config() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: o.MaxOutputTokens}
	if o.Temperature > 0 {
		cfg.Temperature = genai.Ptr(o.Temperature)
	}
	if o.TopP > 0 {
		cfg.TopP = genai.Ptr(o.TopP)
	}
	if o.TopK > 0 {
		cfg.TopK = genai.Ptr(o.TopK)
	}
	return cfg
}

// isTransient reports rate limiting, server-side failures, empty streams and
// network errors.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
