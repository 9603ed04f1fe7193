package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSearch(t *testing.T, key string, h http.HandlerFunc) (*SearchClient, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewSearchClient(key, srv.URL)
	c.retryInitial = 0
	return c, &calls
}

func TestSearchMissingKeyMakesNoRequest(t *testing.T) {
	c, calls := newTestSearch(t, "", func(w http.ResponseWriter, r *http.Request) {})

	res := c.Search(context.Background(), "q", nil)
	assert.Equal(t, "API key is missing", res.Error)
	assert.NotNil(t, res.Results)
	assert.Equal(t, int32(0), calls.Load())
}

func TestSearchRequestAndProjection(t *testing.T) {
	var body map[string]any
	c, _ := newTestSearch(t, "serper-key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "serper-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{
			"organic":[
				{"title":"Quiet Luxury: What's next?","link":"l1","snippet":"s1","position":1,"date":"2 days ago"},
				{"title":"quiet luxury brands","link":"l2","snippet":"s2","position":2}
			],
			"relatedSearches":[{"query":"old money style"}]
		}`))
	})

	res := c.Search(context.Background(), "fashion trends", []string{"retail", "beauty"})

	assert.Equal(t, "fashion trends retail", body["q"])
	assert.Equal(t, "us", body["gl"])
	assert.Equal(t, "en", body["hl"])
	assert.EqualValues(t, 10, body["num"])

	require.Len(t, res.Results, 2)
	assert.Equal(t, "2 days ago", res.Results[0].Date)
	assert.Equal(t, "N/A", res.Results[1].Date)
	assert.Equal(t, []string{"quiet", "luxury", "whats", "brands"}, res.TrendingTopics)
	assert.Len(t, res.RelatedSearches, 1)
	assert.Equal(t, "Found 2 relevant search results with 4 potential trending topics.", res.Summary)
}

func TestSearchNoOrganicResults(t *testing.T) {
	c, _ := newTestSearch(t, "k", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	res := c.Search(context.Background(), "q", nil)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"No relevant search results found.","results":[]}`, string(raw))
}

func TestSearchErrorIncludesStatusAndBody(t *testing.T) {
	c, calls := newTestSearch(t, "k", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad key"))
	})
	res := c.Search(context.Background(), "q", nil)

	assert.Equal(t, "Failed to fetch search data: Serper API error: 403 - bad key", res.Error)
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestSearchRetriesRateLimit(t *testing.T) {
	var n atomic.Int32
	c, _ := newTestSearch(t, "k", func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"organic":[{"title":"x","link":"l","position":1}]}`))
	})
	res := c.Search(context.Background(), "q", nil)
	assert.Empty(t, res.Error)
	assert.Len(t, res.Results, 1)
	assert.NotNil(t, res.TrendingTopics)
}

func TestTrendingTopicsCapsAtTen(t *testing.T) {
	hits := []SearchHit{
		{Title: "alpha1 bravo2 charlie3 delta4 echo55 foxtrot"},
		{Title: "golf77 hotel8 india9 juliet kilo00 limaaa"},
		{Title: "these words which"},
	}
	got := TrendingTopics(hits)
	assert.Len(t, got, 10)
	assert.Equal(t, "alpha1", got[0])
}

func TestTrendingTopicsSkipsCommonAndShort(t *testing.T) {
	got := TrendingTopics([]SearchHit{{Title: "The best tools with which creators grow"}})
	assert.Equal(t, []string{"tools", "which", "creators"}, got)
}
