// Package client talks to the chat API. It prefers the streaming endpoint and
// switches to the simple endpoint for good once a stream cannot be parsed.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"trendseer/internal/observability"
	"trendseer/internal/prompt"
)

// ErrStreamParse means the streaming response was unusable.
var ErrStreamParse = errors.New("client: stream parse failed")

type Mode string

const (
	ModeStream Mode = "stream"
	ModeSimple Mode = "simple"
)

// APIError is a non-2xx JSON answer from the server.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string

	mu   sync.Mutex
	mode Mode
	log  *observability.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends the access token as a bearer header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithMode starts the client in the given mode.
func WithMode(m Mode) Option {
	return func(c *Client) { c.mode = m }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		mode:       ModeStream,
		log:        observability.Component("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode reports the mode the next Send will use.
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

type chatRequest struct {
	Messages []prompt.Message `json:"messages"`
	UserID   string           `json:"userId"`
}

// Send posts the conversation and returns the assistant reply. In stream
// mode onDelta (optional) sees chunks as they arrive; when the stream then
// fails to parse, the same payload is replayed against the simple endpoint
// and onDelta may already have seen part of the discarded answer.
func (c *Client) Send(ctx context.Context, userID string, messages []prompt.Message, onDelta func(string)) (prompt.Message, error) {
	payload, err := json.Marshal(chatRequest{Messages: messages, UserID: userID})
	if err != nil {
		return prompt.Message{}, fmt.Errorf("client: encode request: %w", err)
	}

	if c.Mode() == ModeStream {
		text, err := c.stream(ctx, payload, onDelta)
		if err == nil {
			return prompt.Message{Role: "assistant", Content: text}, nil
		}
		if !errors.Is(err, ErrStreamParse) {
			return prompt.Message{}, err
		}
		c.log.Warn(ctx, "streaming failed, switching to simple mode", "error", err)
		c.mu.Lock()
		c.mode = ModeSimple
		c.mu.Unlock()
	}
	return c.simple(ctx, payload)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", path, err)
	}
	return resp, nil
}

type event struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func (c *Client) stream(ctx context.Context, payload []byte, onDelta func(string)) (string, error) {
	resp, err := c.post(ctx, "/api/chat", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode != http.StatusOK || mediaType != "text/event-stream" {
		return "", fmt.Errorf("%w: status %d, content type %q", ErrStreamParse, resp.StatusCode, mediaType)
	}

	var (
		text strings.Builder
		done bool
	)
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			return "", fmt.Errorf("%w: unexpected line %q", ErrStreamParse, observability.Preview(line, 40))
		}
		var ev event
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			return "", fmt.Errorf("%w: malformed event: %v", ErrStreamParse, err)
		}
		switch ev.Type {
		case "delta":
			text.WriteString(ev.Data)
			if onDelta != nil {
				onDelta(ev.Data)
			}
		case "done":
			done = true
		case "error":
			return "", fmt.Errorf("%w: server error event: %s", ErrStreamParse, ev.Data)
		default:
			return "", fmt.Errorf("%w: unknown event type %q", ErrStreamParse, ev.Type)
		}
		if done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: read stream: %v", ErrStreamParse, err)
	}
	if !done {
		return "", fmt.Errorf("%w: stream ended without done event", ErrStreamParse)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: empty reply", ErrStreamParse)
	}
	return text.String(), nil
}

func (c *Client) simple(ctx context.Context, payload []byte) (prompt.Message, error) {
	resp, err := c.post(ctx, "/api/chat/simple", payload)
	if err != nil {
		return prompt.Message{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return prompt.Message{}, fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error   string `json:"error"`
			Details string `json:"details"`
		}
		_ = json.Unmarshal(body, &e)
		if e.Error == "" {
			e.Error = fmt.Sprintf("Error: %d", resp.StatusCode)
		}
		return prompt.Message{}, &APIError{Status: resp.StatusCode, Message: e.Error, Details: e.Details}
	}

	var msg prompt.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return prompt.Message{}, fmt.Errorf("client: decode reply: %w", err)
	}
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	return msg, nil
}
