// Package app builds the service graph from configuration. The HTTP server
// and the admin CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trendseer/internal/auth"
	"trendseer/internal/chat"
	"trendseer/internal/config"
	"trendseer/internal/llm"
	"trendseer/internal/memory"
	"trendseer/internal/observability"
	"trendseer/internal/prompt"
	"trendseer/internal/server"
	"trendseer/internal/store"
	"trendseer/internal/tools"
	"trendseer/internal/trends"
)

type App struct {
	Config     *config.Config
	Store      store.Store
	Model      llm.Model
	Embedder   memory.Embedder
	Prompts    prompt.Source
	Memory     *memory.Manager
	Summarizer *memory.Summarizer
	News       *tools.NewsClient
	Search     *tools.SearchClient
	Chat       *chat.Service
	Analyzer   *trends.Analyzer
	Refresher  *trends.Refresher

	reloader *prompt.Reloader
	verifier *auth.SupabaseVerifier
	log      *observability.Logger
}

// Build opens the store and wires every service. Close releases what Build
// opened.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, log: observability.Component("app")}

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	a.Store = st

	if err := a.buildModels(ctx); err != nil {
		st.Close()
		return nil, err
	}

	if cfg.PromptsFile != "" {
		r, err := prompt.NewReloader(cfg.PromptsFile)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.reloader = r
		a.Prompts = r
	} else {
		a.Prompts = prompt.Default()
	}

	a.Memory = memory.NewManager(st, a.Embedder, memory.Options{
		Threshold: cfg.MemoryThreshold,
		Disabled:  !cfg.EnableMemory,
	})
	a.Summarizer = memory.NewSummarizer(a.Model, a.Prompts)
	a.News = tools.NewNewsClient(cfg.NewsAPIKey, "")
	a.Search = tools.NewSearchClient(cfg.SerperAPIKey, "")

	var summarizer chat.Summarizer
	if cfg.EnableMemory {
		summarizer = a.Summarizer
	}
	a.Chat = chat.NewService(a.Model, a.Memory, summarizer, tools.NewFetcher(a.News, a.Search), st, a.Prompts, chat.Options{
		MaxDuration:      time.Duration(cfg.MaxResponseSeconds) * time.Second,
		RealTimeDisabled: !cfg.EnableRealtimeData,
	})
	a.Analyzer = trends.NewAnalyzer(a.News, a.Search, a.Model, a.Prompts)

	if cfg.TrendsRefreshCron != "" && len(cfg.TrendsSeedIndustries) > 0 {
		r, err := trends.NewRefresher(a.Search, cfg.TrendsSeedIndustries, cfg.TrendsRefreshCron)
		if err != nil {
			st.Close()
			return nil, err
		}
		a.Refresher = r
	}
	return a, nil
}

func (a *App) buildModels(ctx context.Context) error {
	if a.Config.LLMBackend == "echo" {
		a.Model = llm.Echo{}
		a.Embedder = memory.HashEmbedder{}
		a.log.Warn(ctx, "using offline echo backend")
		return nil
	}
	client, err := llm.NewGeminiClient(ctx, a.Config.GeminiAPIKey, "")
	if err != nil {
		return err
	}
	a.Model = llm.NewGemini(client, a.Config.ChatModel)
	a.Embedder = memory.NewGeminiEmbedder(client, a.Config.EmbeddingModel)
	return nil
}

// Server returns the HTTP server for the configured services.
func (a *App) Server() *server.Server {
	deps := server.Deps{
		Chat:     a.Chat,
		Memory:   a.Memory,
		History:  a.Store,
		Analyzer: a.Analyzer,
	}
	if a.Refresher != nil {
		deps.Topics = a.Refresher
	}
	if !a.Config.AuthDisabled && a.Config.SupabaseURL != "" {
		a.verifier = auth.NewSupabaseVerifier(a.Config.SupabaseURL, a.Config.SupabaseAnonKey)
		deps.Auth = auth.Middleware(a.verifier, auth.Options{})
	} else {
		a.log.Warn(context.Background(), "authentication disabled, requests must carry userId")
	}
	return server.New(a.Config, deps)
}

// Start launches the background jobs: prompt reloading and the trend
// refresher. They stop when ctx is done or Close is called.
func (a *App) Start(ctx context.Context) error {
	if a.reloader != nil {
		go func() {
			if err := a.reloader.Watch(ctx); err != nil {
				a.log.Error(ctx, "prompt watcher stopped", "error", err)
			}
		}()
	}
	if a.Refresher != nil {
		if err := a.Refresher.Start(ctx); err != nil {
			return err
		}
	}
	if err := a.Memory.RuntimeSelfCheck(ctx); err != nil {
		if errors.Is(err, store.ErrSchemaMissing) {
			a.log.Error(ctx, "database schema missing; run `trendseer-admin migrate`", "error", err)
		} else {
			a.log.Warn(ctx, "memory self-check failed", "error", err)
		}
	}
	return nil
}

// Close waits up to ctx for pending chat writes, then stops background jobs
// and closes the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Chat != nil {
		if err := a.Chat.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for chat writes: %w", err))
		}
	}
	if a.Refresher != nil {
		a.Refresher.Stop()
	}
	if a.verifier != nil {
		a.verifier.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
