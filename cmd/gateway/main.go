package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"

	"github.com/hubenschmidt/shop-concierge-gateway/internal/agent/gemini"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/chat"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/history"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/prompts"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/search"
	"github.com/hubenschmidt/shop-concierge-gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()
	if cfg.googleAPIKey == "" {
		slog.Error("GOOGLE_API_KEY environment variable not set")
		os.Exit(1)
	}

	ctx := context.Background()

	searchClient := search.NewClient(search.Config{
		URL:      cfg.vectorSearchURL,
		Dataset:  cfg.searchDataset,
		PoolSize: cfg.searchPoolSize,
	})
	tool := search.NewTool(searchClient, cfg.searchRowsPerQuery)

	runtime, err := gemini.NewRuntime(ctx, gemini.RuntimeConfig{
		APIKey:      cfg.googleAPIKey,
		Model:       cfg.liveModel,
		Voice:       cfg.voice,
		Instruction: prompts.ForSession(cfg.voicePrompt, prompts.Voice),
	})
	if err != nil {
		slog.Error("agent runtime init failed", "error", err)
		os.Exit(1)
	}

	var historyStore *history.Store
	if cfg.historyDBURL != "" {
		historyStore, err = history.Open(cfg.historyDBURL)
		if err != nil {
			slog.Warn("history store unavailable, continuing without persistence", "error", err)
		} else {
			slog.Info("history store enabled")
		}
	}

	chatClient, err := gemini.NewChatClient(ctx, cfg.googleAPIKey, tool, cfg.chatMaxTokens)
	if err != nil {
		slog.Error("chat client init failed", "error", err)
		os.Exit(1)
	}
	chatRouter := chat.NewRouter("gemini", cfg.chatMaxTokens)
	chatRouter.RegisterRaw("gemini", chatClient, cfg.chatModel)
	if cfg.openaiAPIKey != "" {
		chatRouter.Register("openai", agents.NewOpenAIProvider(agents.OpenAIProviderParams{}), cfg.openaiChatModel)
		slog.Info("openai chat engine enabled", "model", cfg.openaiChatModel)
	}

	handler := ws.NewHandler(ws.HandlerConfig{
		Runtime:       runtime,
		Tool:          tool,
		History:       historyStore,
		IdleTimeout:   cfg.idleTimeout,
		MaxConcurrent: cfg.maxConcurrentSessions,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:          cfg,
		chatRouter:   chatRouter,
		wsHandler:    handler,
		historyStore: historyStore,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		srv.Shutdown(shutdownCtx)
		if historyStore != nil {
			historyStore.Close()
		}
	}()

	slog.Info("gateway starting", "addr", addr, "max_concurrent", cfg.maxConcurrentSessions, "live_model", cfg.liveModel)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway stopped")
}
