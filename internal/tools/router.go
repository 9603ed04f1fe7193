package tools

import "strings"

type Tool string

const (
	NewsAPI   Tool = "news-api"
	SerperAPI Tool = "serper-api"
)

var routes = []struct {
	tool     Tool
	keywords []string
}{
	{NewsAPI, []string{"news", "articles", "publications"}},
	{SerperAPI, []string{"search", "trends", "online"}},
}

// Route picks the tools a message asks for by plain substring match on the
// lowercased text, news before search. "newsletter" therefore selects news.
func Route(message string) []Tool {
	lower := strings.ToLower(message)
	var out []Tool
	for _, r := range routes {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, r.tool)
				break
			}
		}
	}
	return out
}
