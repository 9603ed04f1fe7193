package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"trendseer/internal/observability"
)

const DefaultSerperURL = "https://google.serper.dev/search"

type SearchHit struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
	Date     string `json:"date"`
}

type SearchResult struct {
	Summary         string      `json:"summary,omitempty"`
	Error           string      `json:"error,omitempty"`
	Results         []SearchHit `json:"results"`
	TrendingTopics  []string    `json:"trendingTopics,omitzero"`
	RelatedSearches []any       `json:"relatedSearches,omitzero"`
}

type SearchClient struct {
	apiKey       string
	endpoint     string
	httpClient   *http.Client
	retryInitial time.Duration
	log          *observability.Logger
}

func NewSearchClient(apiKey, endpoint string) *SearchClient {
	if endpoint == "" {
		endpoint = DefaultSerperURL
	}
	return &SearchClient{
		apiKey:       apiKey,
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		retryInitial: 300 * time.Millisecond,
		log:          observability.Component("tools.serper"),
	}
}

// Search queries Google through Serper. Only the first industry is added to
// the query to keep results focused.
func (c *SearchClient) Search(ctx context.Context, query string, industries []string) SearchResult {
	if c.apiKey == "" {
		c.log.Error(ctx, "serper search skipped", "error", ErrMissingAPIKey)
		return SearchResult{Error: "API key is missing", Results: []SearchHit{}}
	}

	searchQuery := query
	if len(industries) > 0 {
		searchQuery = query + " " + industries[0]
	}
	ctx, span := observability.StartSpan(ctx, "tools.serper", attribute.Int("query.len", len(searchQuery)))
	c.log.Debug(ctx, "searching with serper", "query_len", len(searchQuery))

	payload, err := json.Marshal(map[string]any{"q": searchQuery, "gl": "us", "hl": "en", "num": 10})
	if err != nil {
		observability.EndSpan(span, err)
		return SearchResult{Error: "Failed to fetch search data: " + err.Error(), Results: []SearchHit{}}
	}

	body, err := doWithRetry(ctx, c.httpClient, c.retryInitial, "Serper API", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Cache-Control", "no-store")
		return req, nil
	})
	if err != nil {
		observability.EndSpan(span, err)
		c.log.Warn(ctx, "serper search failed", "error", err)
		return SearchResult{Error: "Failed to fetch search data: " + err.Error(), Results: []SearchHit{}}
	}

	var data struct {
		Organic []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Position int    `json:"position"`
			Date     string `json:"date"`
		} `json:"organic"`
		RelatedSearches []any `json:"relatedSearches"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		observability.EndSpan(span, err)
		return SearchResult{Error: "Failed to fetch search data: " + err.Error(), Results: []SearchHit{}}
	}
	observability.EndSpan(span, nil)

	if len(data.Organic) == 0 {
		return SearchResult{Summary: "No relevant search results found.", Results: []SearchHit{}}
	}

	hits := make([]SearchHit, 0, len(data.Organic))
	for _, r := range data.Organic {
		date := r.Date
		if date == "" {
			date = "N/A"
		}
		hits = append(hits, SearchHit{Title: r.Title, Link: r.Link, Snippet: r.Snippet, Position: r.Position, Date: date})
	}
	topics := TrendingTopics(hits)
	related := data.RelatedSearches
	if related == nil {
		related = []any{}
	}

	return SearchResult{
		Summary:         fmt.Sprintf("Found %d relevant search results with %d potential trending topics.", len(hits), len(topics)),
		Results:         hits,
		TrendingTopics:  topics,
		RelatedSearches: related,
	}
}

var commonWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "that": true,
	"this": true, "what": true, "how": true, "why": true,
}

const maxTrendingTopics = 10

// TrendingTopics collects distinct title words longer than four characters,
// in first-seen order, capped at ten. Punctuation is stripped first; only
// ASCII letters, digits, underscores and whitespace survive.
func TrendingTopics(hits []SearchHit) []string {
	seen := map[string]bool{}
	topics := []string{}
	for _, h := range hits {
		for _, word := range strings.Split(stripPunctuation(strings.ToLower(h.Title)), " ") {
			if utf8.RuneCountInString(word) <= 4 || commonWords[word] || seen[word] {
				continue
			}
			seen[word] = true
			topics = append(topics, word)
		}
	}
	if len(topics) > maxTrendingTopics {
		topics = topics[:maxTrendingTopics]
	}
	return topics
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < utf8.RuneSelf && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)):
			return r
		case unicode.IsSpace(r):
			return r
		}
		return -1
	}, s)
}
