package tools

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type NewsFetcher interface {
	FetchNews(ctx context.Context, query string, industries []string) NewsResult
}

type Searcher interface {
	Search(ctx context.Context, query string, industries []string) SearchResult
}

// RealTimeData holds the outputs of the tools that ran, keyed "news" and
// "search". A nil field means the tool was not selected.
type RealTimeData struct {
	News   *NewsResult   `json:"news,omitempty"`
	Search *SearchResult `json:"search,omitempty"`
}

// Empty reports whether no tool ran.
func (d RealTimeData) Empty() bool { return d.News == nil && d.Search == nil }

type Fetcher struct {
	news   NewsFetcher
	search Searcher
}

func NewFetcher(news NewsFetcher, search Searcher) *Fetcher {
	return &Fetcher{news: news, search: search}
}

// FetchRealTimeData runs the selected tools concurrently. The clients never
// return errors, so the group only joins the goroutines.
func (f *Fetcher) FetchRealTimeData(ctx context.Context, selected []Tool, query string, industries []string) RealTimeData {
	var (
		out RealTimeData
		g   errgroup.Group
	)
	for _, tool := range selected {
		switch tool {
		case NewsAPI:
			if f.news == nil || out.News != nil {
				continue
			}
			out.News = &NewsResult{}
			g.Go(func() error {
				*out.News = f.news.FetchNews(ctx, query, industries)
				return nil
			})
		case SerperAPI:
			if f.search == nil || out.Search != nil {
				continue
			}
			out.Search = &SearchResult{}
			g.Go(func() error {
				*out.Search = f.search.Search(ctx, query, industries)
				return nil
			})
		}
	}
	_ = g.Wait()
	return out
}
