package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"trendseer/internal/observability"
)

const DefaultNewsBaseURL = "https://newsapi.org/v2"

type Article struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type NewsResult struct {
	Summary  string               `json:"summary,omitempty"`
	Error    string               `json:"error,omitempty"`
	Articles []Article            `json:"articles"`
	Topics   map[string][]Article `json:"topics,omitzero"`
}

type NewsClient struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	retryInitial time.Duration
	log          *observability.Logger
}

func NewNewsClient(apiKey, baseURL string) *NewsClient {
	if baseURL == "" {
		baseURL = DefaultNewsBaseURL
	}
	return &NewsClient{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		retryInitial: 300 * time.Millisecond,
		log:          observability.Component("tools.news"),
	}
}

// FetchNews searches recent English articles for query, widened with the
// user's industries as OR terms.
func (c *NewsClient) FetchNews(ctx context.Context, query string, industries []string) NewsResult {
	searchQuery := query
	if len(industries) > 0 {
		searchQuery = query + " " + strings.Join(industries, " OR ")
	}

	ctx, span := observability.StartSpan(ctx, "tools.news", attribute.Int("query.len", len(searchQuery)))
	endpoint := fmt.Sprintf("%s/everything?q=%s&sortBy=publishedAt&language=en&pageSize=10",
		c.baseURL, url.QueryEscape(searchQuery))

	body, err := doWithRetry(ctx, c.httpClient, c.retryInitial, "News API", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		return req, nil
	})
	if err != nil {
		observability.EndSpan(span, err)
		c.log.Warn(ctx, "news fetch failed", "error", err)
		return NewsResult{Error: "Failed to fetch news data", Articles: []Article{}}
	}

	var payload struct {
		Articles []struct {
			Title  string `json:"title"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			PublishedAt string `json:"publishedAt"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		observability.EndSpan(span, err)
		c.log.Warn(ctx, "news decode failed", "error", err)
		return NewsResult{Error: "Failed to fetch news data", Articles: []Article{}}
	}
	observability.EndSpan(span, nil)

	if len(payload.Articles) == 0 {
		return NewsResult{Summary: "No relevant news articles found.", Articles: []Article{}}
	}

	articles := make([]Article, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		articles = append(articles, Article{
			Title:       a.Title,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
			URL:         a.URL,
			Description: a.Description,
		})
	}
	topics := groupByTopic(articles)
	c.log.Debug(ctx, "news fetched", "articles", len(articles), "topics", len(topics))

	return NewsResult{
		Summary:  fmt.Sprintf("Found %d relevant news articles across %d topics.", len(articles), len(topics)),
		Articles: articles,
		Topics:   topics,
	}
}

var topicStopWords = map[string]bool{"about": true, "these": true, "those": true, "their": true, "there": true}

// groupByTopic files each article under the first word of its lowercased
// title longer than five characters. Articles without such a word are left
// out of the grouping.
func groupByTopic(articles []Article) map[string][]Article {
	topics := map[string][]Article{}
	for _, a := range articles {
		for _, word := range strings.Split(strings.ToLower(a.Title), " ") {
			if utf8.RuneCountInString(word) > 5 && !topicStopWords[word] {
				topics[word] = append(topics[word], a)
				break
			}
		}
	}
	return topics
}
