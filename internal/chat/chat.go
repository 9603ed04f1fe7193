// Package chat runs one conversation turn: load the user's memory, route and
// fetch real-time data, prompt the model, then persist the summary and the
// exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"trendseer/internal/llm"
	"trendseer/internal/observability"
	"trendseer/internal/prompt"
	"trendseer/internal/store"
	"trendseer/internal/tools"
)

var (
	ErrNoMessages     = errors.New("chat: messages are required")
	ErrEmptyMessage   = errors.New("chat: last message is empty")
	ErrUserIDRequired = errors.New("chat: user ID is required")
)

// GenerationError wraps a model failure so handlers can tell it apart from
// request problems.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generate response: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a request validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoMessages) || errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrUserIDRequired)
}

// Memory is the part of memory.Manager a turn needs.
type Memory interface {
	GetUserContext(ctx context.Context, userID string) store.UserContext
	UpdateMemory(ctx context.Context, userID string, content store.MemoryContent) bool
}

type Summarizer interface {
	Summarize(ctx context.Context, messages []prompt.Message) store.MemoryContent
}

type RealTimeFetcher interface {
	FetchRealTimeData(ctx context.Context, selected []tools.Tool, query string, industries []string) tools.RealTimeData
}

// History stores finished exchanges. CreateUser must be idempotent; it runs
// before every insert because chat_history rows reference users.
type History interface {
	CreateUser(ctx context.Context, userID string) error
	InsertChat(ctx context.Context, e store.ChatEntry) (store.ChatEntry, error)
}

type TurnRequest struct {
	UserID   string           `json:"userId"`
	Messages []prompt.Message `json:"messages"`
}

// Sink receives streamed chunks. Returning an error aborts the turn.
type Sink func(chunk string) error

type Options struct {
	// MaxDuration bounds each turn including tool calls. Zero means 300s.
	MaxDuration time.Duration
	// RealTimeDisabled skips the tool router entirely.
	RealTimeDisabled bool
	// PersistTimeout bounds the background summary and history writes.
	PersistTimeout time.Duration
}

type Service struct {
	model      llm.Model
	memory     Memory
	summarizer Summarizer
	fetcher    RealTimeFetcher
	history    History
	prompts    prompt.Source
	opts       Options
	persist    *persistQueue
	log        *observability.Logger
}

func NewService(model llm.Model, mem Memory, summarizer Summarizer, fetcher RealTimeFetcher, history History, prompts prompt.Source, opts Options) *Service {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 300 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 2 * time.Minute
	}
	s := &Service{
		model:      model,
		memory:     mem,
		summarizer: summarizer,
		fetcher:    fetcher,
		history:    history,
		prompts:    prompts,
		opts:       opts,
		log:        observability.Component("chat"),
	}
	s.persist = newPersistQueue(s.persistTurn)
	return s
}

// Turn answers the last message of req. A non-nil sink selects streaming
// mode: chunks are delivered as the model produces them. A nil sink selects
// simple mode and the reply is returned in one piece.
//
// The summary and chat-history writes run after Turn returns, serialized
// per user. Wait blocks until they are done.
func (s *Service) Turn(ctx context.Context, req TurnRequest, sink Sink) (string, error) {
	last, err := validate(req)
	if err != nil {
		return "", err
	}

	mode := "simple"
	if sink != nil {
		mode = "stream"
	}
	ctx = observability.WithUserID(ctx, req.UserID)
	ctx, cancel := context.WithTimeout(ctx, s.opts.MaxDuration)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "chat.turn",
		attribute.String("chat.mode", mode),
		attribute.Int("chat.messages", len(req.Messages)),
	)
	started := time.Now()

	uc := s.memory.GetUserContext(ctx, req.UserID)

	var realtime tools.RealTimeData
	selected := tools.Route(last)
	if !s.opts.RealTimeDisabled && len(selected) > 0 && s.fetcher != nil {
		realtime = s.fetcher.FetchRealTimeData(ctx, selected, last, uc.Industries)
	}
	span.SetAttributes(attribute.Int("chat.tools", len(selected)))

	templates := s.prompts.Current()
	var reply string
	if sink != nil {
		p := templates.BuildStreamingPrompt(uc, realtime, req.Messages)
		s.log.Debug(ctx, "streaming prompt built", "prompt_len", len(p), "tools", len(selected))
		reply, err = s.model.Stream(ctx, p, llm.GenerateOptions{}, sink)
	} else {
		p := templates.BuildSimplePrompt(uc, realtime, req.Messages)
		s.log.Debug(ctx, "simple prompt built", "prompt_len", len(p), "prompt_preview", observability.Preview(p, 200))
		reply, err = s.model.Generate(ctx, p, llm.SimpleChatOptions)
	}
	if err != nil {
		err = &GenerationError{Err: err}
		observability.EndSpan(span, err)
		s.log.Error(ctx, "turn failed", "mode", mode, "duration_ms", time.Since(started).Milliseconds(), "error", err)
		return "", err
	}
	observability.EndSpan(span, nil)
	s.log.Info(ctx, "turn answered", "mode", mode, "reply_len", len(reply), "duration_ms", time.Since(started).Milliseconds())

	if strings.TrimSpace(reply) != "" {
		s.persist.enqueue(context.WithoutCancel(ctx), turnRecord{
			userID:   req.UserID,
			messages: req.Messages,
			question: last,
			reply:    reply,
		})
	}
	return reply, nil
}

// Wait blocks until queued summary and history writes have finished or ctx
// is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.persist.wait(ctx)
}

func validate(req TurnRequest) (string, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", ErrUserIDRequired
	}
	if len(req.Messages) == 0 {
		return "", ErrNoMessages
	}
	last := req.Messages[len(req.Messages)-1].Content
	if strings.TrimSpace(last) == "" {
		return "", ErrEmptyMessage
	}
	return last, nil
}

func (s *Service) persistTurn(ctx context.Context, rec turnRecord) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "chat.persist")
	defer span.End()

	if s.summarizer != nil {
		summary := s.summarizer.Summarize(ctx, rec.messages)
		if summary.IsEmpty() {
			s.log.Debug(ctx, "summary empty, memory not updated")
		} else if !s.memory.UpdateMemory(ctx, rec.userID, summary) {
			s.log.Warn(ctx, "memory update failed")
		}
	}

	if s.history != nil {
		if err := s.history.CreateUser(ctx, rec.userID); err != nil {
			s.log.Error(ctx, "error saving chat history", "error", fmt.Errorf("chat: ensure user: %w", err))
			return
		}
		_, err := s.history.InsertChat(ctx, store.ChatEntry{
			UserID:           rec.userID,
			UserMessage:      rec.question,
			AssistantMessage: rec.reply,
		})
		if err != nil {
			s.log.Error(ctx, "error saving chat history", "error", fmt.Errorf("chat: %w", err))
		}
	}
}
