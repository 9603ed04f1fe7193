package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"trendseer/internal/chat"
	"trendseer/internal/config"
	"trendseer/internal/memory"
	"trendseer/internal/observability"
	"trendseer/internal/store"
	"trendseer/internal/trends"
)

type ChatService interface {
	Turn(ctx context.Context, req chat.TurnRequest, sink chat.Sink) (string, error)
}

type MemoryService interface {
	Profile(ctx context.Context, userID string) (memory.Profile, error)
	SearchSimilarMemories(ctx context.Context, userID, query string, limit int) []store.MemoryMatch
}

type HistoryStore interface {
	ListChats(ctx context.Context, userID string, limit int) ([]store.ChatEntry, error)
}

type TrendAnalyzer interface {
	Analyze(ctx context.Context, topic string, industries []string) (trends.Analysis, error)
}

type TopicSource interface {
	Topics() trends.Snapshot
}

// Deps are the services behind the routes. Nil Topics disables
// /api/trends/topics; nil Auth lets every request through.
type Deps struct {
	Chat     ChatService
	Memory   MemoryService
	History  HistoryStore
	Analyzer TrendAnalyzer
	Topics   TopicSource
	Auth     func(http.Handler) http.Handler
}

type Server struct {
	cfg     *config.Config
	mux     *http.ServeMux
	handler http.Handler
	deps    Deps
	httpSrv *http.Server
	log     *observability.Logger
}

func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:  cfg,
		mux:  http.NewServeMux(),
		deps: deps,
		log:  observability.Component("server"),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChatStream)
	s.mux.HandleFunc("POST /api/chat/simple", s.handleChatSimple)
	s.mux.HandleFunc("GET /api/chat/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/user/profile", s.handleProfile)
	s.mux.HandleFunc("GET /api/memories/search", s.handleMemorySearch)
	s.mux.HandleFunc("POST /api/trends/analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /api/trends/topics", s.handleTopics)

	var h http.Handler = s.mux
	if deps.Auth != nil {
		h = deps.Auth(h)
	}
	h = observability.TraceMiddleware(h)
	h = observability.RequestIDMiddleware(h)
	s.handler = observability.RecoverMiddleware("server.recover", h)
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) ListenAndServe() error {
	s.log.Info(context.Background(), "trendseer listening", "addr", s.httpSrv.Addr, "env", s.cfg.AppEnv)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	SetupRequired bool   `json:"setupRequired,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
