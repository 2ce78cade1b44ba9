package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopilots.com/chatbot/internal/analytics"
	"shopilots.com/chatbot/internal/api"
	"shopilots.com/chatbot/internal/config"
	"shopilots.com/chatbot/internal/core"
	"shopilots.com/chatbot/internal/corpus"
	"shopilots.com/chatbot/internal/index"
	"shopilots.com/chatbot/internal/llm"
	"shopilots.com/chatbot/internal/logging"
	"shopilots.com/chatbot/internal/store"
)

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger := logging.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	// Command line flag for data ingestion
	ingestDataFlag := flag.Bool("ingest", false, "Build the vector index from CORPUS_DIR and exit")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fatal(logger, "Invalid configuration", err)
	}
	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		fatal(logger, "Failed to load prompts", err)
	}

	// Initialize database stores
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL, logger)
	if err != nil {
		fatal(logger, "Failed to initialize database", err)
	}
	defer dbStore.Close()

	analyticsStore := dbStore
	if cfg.AnalyticsDatabaseURL != "" && cfg.AnalyticsDatabaseURL != cfg.DatabaseURL {
		analyticsStore, err = store.NewSQLiteStore(cfg.AnalyticsDatabaseURL, logger)
		if err != nil {
			fatal(logger, "Failed to initialize analytics database", err)
		}
		defer analyticsStore.Close()
	}

	ctx := context.Background()
	providers, err := llm.NewProviders(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "Failed to initialize model providers", err)
	}
	defer providers.Close()

	// Handle data ingestion if flag is set
	if *ingestDataFlag {
		if err := ingest(ctx, cfg, dbStore, providers.Embedder, logger); err != nil {
			providers.Close()
			dbStore.Close()
			fatal(logger, "Index build failed", err)
		}
		return
	}

	ix, err := core.LoadIndex(ctx, dbStore, providers.Embedder)
	if err != nil {
		logger.Warn("Starting in degraded mode, queries will be answered without context", "error", err)
	} else {
		logger.Info("Vector index loaded", "chunks", ix.Len(), "model", ix.Manifest().EmbeddingModel)
	}
	holder := index.NewHolder(ix)

	tracker := analytics.NewTracker(analytics.DefaultMaxEvents)
	if recent, err := analyticsStore.RecentEvents(ctx, analytics.DefaultMaxEvents); err != nil {
		logger.Warn("Could not restore analytics history", "error", err)
	} else {
		for _, ev := range recent {
			tracker.Track(ev)
		}
	}
	recorder := analytics.NewRecorder(tracker, analyticsStore, 0, logger)
	defer recorder.Close()

	tiers := make([]core.Tier, 0, len(providers.Completers)+1)
	for i, c := range providers.Completers {
		tiers = append(tiers, core.Tier{Completer: c, Retry: i == 0})
	}
	tiers = append(tiers, core.Tier{Completer: llm.NewStatic(prompts.Apology)})

	sessions := core.NewSessionStore(cfg.HistoryTurns, 0)
	chatService := core.NewChatService(core.ChatServiceDeps{
		Holder:   holder,
		Store:    dbStore,
		Embedder: providers.Embedder,
		Retriever: core.NewRetriever(providers.Embedder, core.RetrieverConfig{
			TopK:         cfg.TopK,
			Threshold:    float32(cfg.SimilarityThreshold),
			EmbedTimeout: cfg.EmbedTimeout,
			WithHistory:  cfg.HistoryInRetrieval,
		}, logger),
		Prompts:         core.NewPromptBuilder(prompts, cfg.PromptBudgetChars),
		Generator:       core.NewGenerator(tiers, cfg.CompletionTimeout, logger),
		Sessions:        sessions,
		Events:          recorder,
		Logger:          logger,
		RequestTimeout:  cfg.RequestTimeout,
		ModelConfigured: cfg.GeminiAPIKey != "" || cfg.LocalModelEnabled,
	})

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, tracker, analyticsStore, logger)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second, // streams stay open for the whole answer
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server, press Ctrl+C to quit", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "Could not listen", err)
		}
	}()

	// SIGHUP reloads the persisted index; SIGINT and SIGTERM shut down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		reloadCtx, cancel := context.WithTimeout(ctx, time.Minute)
		if err := chatService.ReloadIndex(reloadCtx); err != nil {
			logger.Error("Index reload failed, keeping the current index", "error", err)
		}
		cancel()
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exiting gracefully")
}

func ingest(ctx context.Context, cfg config.Config, dbStore *store.SQLiteStore, embedder llm.Embedder, logger *slog.Logger) error {
	logger.Info("Starting data ingestion", "corpus", cfg.CorpusDir)
	docs, err := corpus.Load(cfg.CorpusDir)
	if err != nil {
		return err
	}
	builder, err := core.NewBuilder(embedder, dbStore, core.BuilderConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbedBatchSize,
		RatePerSec:   cfg.EmbedRatePerSec,
	}, logger)
	if err != nil {
		return err
	}
	ix, err := builder.Build(ctx, docs)
	if err != nil {
		return err
	}
	logger.Info("Data ingestion complete", "documents", len(docs), "chunks", ix.Len())
	return nil
}
