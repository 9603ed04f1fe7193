package tools

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	cases := []struct {
		msg  string
		want []Tool
	}{
		{"Any NEWS about sneakers?", []Tool{NewsAPI}},
		{"what are the trends online", []Tool{SerperAPI}},
		{"search for articles on AI", []Tool{NewsAPI, SerperAPI}},
		{"subscribe to my newsletter", []Tool{NewsAPI}},
		{"hello", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Route(tc.msg), tc.msg)
	}
}

type stubNews struct{ calls atomic.Int32 }

func (s *stubNews) FetchNews(_ context.Context, q string, _ []string) NewsResult {
	s.calls.Add(1)
	return NewsResult{Summary: "news for " + q, Articles: []Article{}}
}

type stubSearch struct{ calls atomic.Int32 }

func (s *stubSearch) Search(_ context.Context, q string, _ []string) SearchResult {
	s.calls.Add(1)
	return SearchResult{Summary: "search for " + q, Results: []SearchHit{}}
}

func TestFetcherRunsOnlySelectedTools(t *testing.T) {
	news, search := &stubNews{}, &stubSearch{}
	f := NewFetcher(news, search)

	data := f.FetchRealTimeData(context.Background(), []Tool{SerperAPI}, "q", nil)
	assert.Nil(t, data.News)
	if assert.NotNil(t, data.Search) {
		assert.Equal(t, "search for q", data.Search.Summary)
	}
	assert.Equal(t, int32(0), news.calls.Load())

	data = f.FetchRealTimeData(context.Background(), []Tool{NewsAPI, SerperAPI}, "q", nil)
	assert.NotNil(t, data.News)
	assert.NotNil(t, data.Search)

	data = f.FetchRealTimeData(context.Background(), nil, "q", nil)
	assert.True(t, data.Empty())
}
