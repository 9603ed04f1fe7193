package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSON locates the JSON object in a model reply: a ```json fenced
// block first, then the first {...} that decodes as a complete value, then
// the outermost {...} span, then the whole text if it is valid JSON. Only
// the outermost span may fail to parse; callers distinguish "no JSON"
// (false) from "JSON that fails to decode".
func ExtractJSON(text string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if obj, ok := firstObject(text); ok {
		return obj, true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], true
	}
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}
	return "", false
}

// firstObject returns the first object in text that decodes on its own,
// ignoring braces in surrounding prose.
func firstObject(text string) (string, bool) {
	for offset := 0; offset < len(text); {
		i := strings.IndexByte(text[offset:], '{')
		if i < 0 {
			return "", false
		}
		start := offset + i
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return text[start : start+int(dec.InputOffset())], true
		}
		offset = start + 1
	}
	return "", false
}
