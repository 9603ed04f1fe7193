package memory

import (
	"slices"
	"unicode/utf8"

	"trendseer/internal/store"
)

// Consolidate merges memories (newest first) into a single user context:
// industries and trends are unioned in first-seen order, and the longest
// audience and goals descriptions win, ties going to the newer memory.
func Consolidate(memories []store.Memory) store.UserContext {
	ctx := store.EmptyUserContext()
	for _, m := range memories {
		c := m.Content
		for _, industry := range c.Industries {
			if !slices.Contains(ctx.Industries, industry) {
				ctx.Industries = append(ctx.Industries, industry)
			}
		}
		if longer(c.Audience, ctx.Audience) {
			ctx.Audience = c.Audience
		}
		if longer(c.Goals, ctx.Goals) {
			ctx.Goals = c.Goals
		}
		for _, trend := range c.Trends {
			if !slices.Contains(ctx.PreviousTrends, trend) {
				ctx.PreviousTrends = append(ctx.PreviousTrends, trend)
			}
		}
	}
	return ctx
}

func longer(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	return current == "" || utf8.RuneCountInString(candidate) > utf8.RuneCountInString(current)
}
