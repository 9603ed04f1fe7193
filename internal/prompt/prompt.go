// Package prompt renders the prompts sent to the model. Templates are YAML
// documents parsed with text/template; the defaults are embedded.
package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"trendseer/internal/store"
)

//go:embed prompts.yaml
var defaultTemplates []byte

const (
	notSpecified = "Not specified yet"
	noneYet      = "None yet"
)

// Message is one chat turn as the client sends it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type templateSource struct {
	System   string `yaml:"system"`
	Summary  string `yaml:"summary"`
	Analysis string `yaml:"analysis"`
}

// Templates holds the parsed prompt templates. Safe for concurrent use.
type Templates struct {
	system   *template.Template
	summary  *template.Template
	analysis *template.Template
}

// Load parses the embedded templates, then overlays any keys present in the
// YAML file at path. An empty path uses the defaults only.
func Load(path string) (*Templates, error) {
	var src templateSource
	if err := yaml.Unmarshal(defaultTemplates, &src); err != nil {
		return nil, fmt.Errorf("prompt: parse embedded templates: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("prompt: read %s: %w", path, err)
		}
		var override templateSource
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("prompt: parse %s: %w", path, err)
		}
		if override.System != "" {
			src.System = override.System
		}
		if override.Summary != "" {
			src.Summary = override.Summary
		}
		if override.Analysis != "" {
			src.Analysis = override.Analysis
		}
	}

	t := &Templates{}
	var err error
	if t.system, err = template.New("system").Parse(src.System); err != nil {
		return nil, fmt.Errorf("prompt: system template: %w", err)
	}
	if t.summary, err = template.New("summary").Parse(src.Summary); err != nil {
		return nil, fmt.Errorf("prompt: summary template: %w", err)
	}
	if t.analysis, err = template.New("analysis").Parse(src.Analysis); err != nil {
		return nil, fmt.Errorf("prompt: analysis template: %w", err)
	}
	return t, nil
}

// Default returns the embedded templates. It panics only if the embedded
// file is broken, which the tests rule out.
func Default() *Templates {
	t, err := Load("")
	if err != nil {
		panic(err)
	}
	return t
}

// BuildSystemPrompt renders the persona block with the user's context and
// the tool results. realtime is rendered as indented JSON.
func (t *Templates) BuildSystemPrompt(uc store.UserContext, realtime any) string {
	return render(t.system, map[string]string{
		"Industries":     joinOr(uc.Industries, notSpecified),
		"Audience":       orDefault(uc.Audience, notSpecified),
		"Goals":          orDefault(uc.Goals, notSpecified),
		"PreviousTrends": joinOr(uc.PreviousTrends, noneYet),
		"RealTimeData":   indentJSON(realtime),
	})
}

// BuildStreamingPrompt appends the conversation, one "role: content" line
// per message, to the system prompt.
func (t *Templates) BuildStreamingPrompt(uc store.UserContext, realtime any, messages []Message) string {
	var b strings.Builder
	b.WriteString(t.BuildSystemPrompt(uc, realtime))
	b.WriteString("\n\nCONVERSATION HISTORY:\n")
	b.WriteString(formatMessages(messages, "\n"))
	return b.String()
}

// BuildSimplePrompt prepends the system prompt as a "system" message and
// joins every message with blank lines.
func (t *Templates) BuildSimplePrompt(uc store.UserContext, realtime any, messages []Message) string {
	all := make([]Message, 0, len(messages)+1)
	all = append(all, Message{Role: "system", Content: t.BuildSystemPrompt(uc, realtime)})
	all = append(all, messages...)
	return formatMessages(all, "\n\n")
}

func (t *Templates) BuildSummaryPrompt(messages []Message) string {
	return render(t.summary, map[string]string{
		"Conversation": formatMessages(messages, "\n"),
	})
}

func (t *Templates) BuildAnalysisPrompt(topic string, news, search any) string {
	return render(t.analysis, map[string]string{
		"Topic":  topic,
		"News":   indentJSON(news),
		"Search": indentJSON(search),
	})
}

func render(tmpl *template.Template, data map[string]string) string {
	var buf bytes.Buffer
	// map data cannot fail execution
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}

func formatMessages(messages []Message, sep string) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, sep)
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// indentJSON renders v with two-space indentation; & and < stay unescaped.
func indentJSON(v any) string {
	if v == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return strings.TrimRight(buf.String(), "\n")
}
