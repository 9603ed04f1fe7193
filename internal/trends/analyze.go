// Package trends analyzes a single trend topic on demand and keeps a
// periodically refreshed list of trending topics.
package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"trendseer/internal/llm"
	"trendseer/internal/observability"
	"trendseer/internal/prompt"
	"trendseer/internal/tools"
)

var ErrTopicRequired = errors.New("trends: topic is required")

// ParseError means the model replied with something shaped like JSON that
// does not decode.
type ParseError struct {
	RawText string
	Err     error
}

func (e *ParseError) Error() string { return "trends: parse analysis: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

type Sources struct {
	News   int `json:"news"`
	Search int `json:"search"`
}

// Analysis is the response of a trend analysis. Result holds the model's
// JSON object verbatim, or a JSON string with the raw reply when the model
// returned no JSON.
type Analysis struct {
	Topic   string          `json:"topic"`
	Result  json.RawMessage `json:"analysis"`
	Sources Sources         `json:"sources"`
}

type Analyzer struct {
	news    tools.NewsFetcher
	search  tools.Searcher
	model   llm.Model
	prompts prompt.Source
	log     *observability.Logger
}

func NewAnalyzer(news tools.NewsFetcher, search tools.Searcher, model llm.Model, prompts prompt.Source) *Analyzer {
	return &Analyzer{
		news:    news,
		search:  search,
		model:   model,
		prompts: prompts,
		log:     observability.Component("trends.analyze"),
	}
}

// Analyze fetches news and search results for topic in parallel and asks the
// model for a structured analysis.
func (a *Analyzer) Analyze(ctx context.Context, topic string, industries []string) (Analysis, error) {
	if strings.TrimSpace(topic) == "" {
		return Analysis{}, ErrTopicRequired
	}
	ctx, span := observability.StartSpan(ctx, "trends.analyze", attribute.String("trends.topic", topic))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var (
		news   tools.NewsResult
		search tools.SearchResult
		g      errgroup.Group
	)
	g.Go(func() error {
		news = a.news.FetchNews(ctx, topic, industries)
		return nil
	})
	g.Go(func() error {
		search = a.search.Search(ctx, topic, industries)
		return nil
	})
	_ = g.Wait()

	out := Analysis{
		Topic:   topic,
		Sources: Sources{News: len(news.Articles), Search: len(search.Results)},
	}

	text, err := a.model.Generate(ctx, a.prompts.Current().BuildAnalysisPrompt(topic, news, search), llm.GenerateOptions{})
	if err != nil {
		err = fmt.Errorf("trends: generate analysis: %w", err)
		return Analysis{}, err
	}

	candidate, ok := llm.ExtractJSON(text)
	if !ok {
		a.log.Debug(ctx, "analysis has no JSON, returning raw text", "response_len", len(text))
		out.Result, _ = json.Marshal(text)
		return out, nil
	}
	if !json.Valid([]byte(candidate)) {
		var probe any
		perr := json.Unmarshal([]byte(candidate), &probe)
		a.log.Warn(ctx, "error parsing analysis", "error", perr, "response_len", len(text))
		err = &ParseError{RawText: text, Err: perr}
		return Analysis{}, err
	}
	out.Result = json.RawMessage(candidate)
	a.log.Info(ctx, "trend analyzed", "news", out.Sources.News, "search", out.Sources.Search)
	return out, nil
}
