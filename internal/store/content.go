package store

import (
	"bytes"
	"encoding/json"
)

// MemoryContent is the summary blob stored per memory. Blobs come from LLM
// output, so decoding is lenient: a field of the wrong shape decodes as its
// zero value instead of failing the whole row.
type MemoryContent struct {
	Industries []string `json:"industries"`
	Audience   string   `json:"audience"`
	Goals      string   `json:"goals"`
	Trends     []string `json:"trends"`
}

func (c *MemoryContent) UnmarshalJSON(data []byte) error {
	*c = MemoryContent{}
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// not an object at all
		return nil
	}
	c.Industries = stringList(raw["industries"])
	c.Audience = stringValue(raw["audience"])
	c.Goals = stringValue(raw["goals"])
	c.Trends = stringList(raw["trends"])
	return nil
}

// MarshalJSON always emits arrays, never null.
func (c MemoryContent) MarshalJSON() ([]byte, error) {
	type plain MemoryContent
	out := plain(c)
	if out.Industries == nil {
		out.Industries = []string{}
	}
	if out.Trends == nil {
		out.Trends = []string{}
	}
	return json.Marshal(out)
}

// IsEmpty reports whether the summary carries no information.
func (c MemoryContent) IsEmpty() bool {
	return len(c.Industries) == 0 && c.Audience == "" && c.Goals == "" && len(c.Trends) == 0
}

// DecodeContent parses a stored content column.
func DecodeContent(data []byte) MemoryContent {
	var c MemoryContent
	_ = c.UnmarshalJSON(data)
	return c
}

func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// UserContext is the consolidated view of all of a user's memories.
type UserContext struct {
	Industries     []string `json:"industries"`
	Audience       string   `json:"audience"`
	Goals          string   `json:"goals"`
	PreviousTrends []string `json:"previousTrends"`
}

// EmptyUserContext has non-nil slices so it encodes as [] rather than null.
func EmptyUserContext() UserContext {
	return UserContext{Industries: []string{}, PreviousTrends: []string{}}
}
