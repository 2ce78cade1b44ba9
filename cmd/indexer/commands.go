package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"shopilots.com/chatbot/internal/config"
	"shopilots.com/chatbot/internal/core"
	"shopilots.com/chatbot/internal/corpus"
	"shopilots.com/chatbot/internal/llm"
	"shopilots.com/chatbot/internal/logging"
	"shopilots.com/chatbot/internal/store"
)

type buildOptions struct {
	chunkSize    int
	chunkOverlap int
	corpusDir    string
	database     string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Build and inspect the Shopilots vector index",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadConfig()
		},
	}
	root.AddCommand(newBuildCmd(), newStatsCmd())
	return root
}

func newBuildCmd() *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Rebuild the index from the corpus directory",
		Long: `Reads every document under the corpus directory, chunks and embeds it,
and replaces the persisted index in one transaction. On any embedding or
storage failure the previous index is left untouched and the command exits
non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "chunk size in characters (default CHUNK_SIZE)")
	cmd.Flags().IntVar(&opts.chunkOverlap, "chunk-overlap", 0, "overlap between chunks in characters (default CHUNK_OVERLAP)")
	cmd.Flags().StringVar(&opts.corpusDir, "corpus", "", "corpus directory (default CORPUS_DIR)")
	cmd.Flags().StringVar(&opts.database, "db", "", "index database file (default DATABASE_URL)")
	return cmd
}

func runBuild(cmd *cobra.Command, opts buildOptions) error {
	cfg := config.AppConfig
	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = opts.chunkSize
	}
	if flags.Changed("chunk-overlap") {
		cfg.ChunkOverlap = opts.chunkOverlap
	}
	if opts.corpusDir != "" {
		cfg.CorpusDir = opts.corpusDir
	}
	if opts.database != "" {
		cfg.DatabaseURL = opts.database
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := corpus.Load(cfg.CorpusDir)
	if err != nil {
		return err
	}
	cmd.Printf("Loaded %d documents from %s\n", len(docs), cfg.CorpusDir)

	providers, err := llm.NewProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer providers.Close()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer dbStore.Close()

	builder, err := core.NewBuilder(providers.Embedder, dbStore, core.BuilderConfig{
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
		return fmt.Errorf("index build failed: %w", err)
	}

	m := ix.Manifest()
	cmd.Printf("Indexed %d chunks (model %s, dimension %d) into %s\n", m.ChunkCount, m.EmbeddingModel, m.Dimension, cfg.DatabaseURL)
	return nil
}

func newStatsCmd() *cobra.Command {
	var (
		database string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the index manifest and chunks per document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if database == "" {
				database = config.AppConfig.DatabaseURL
			}
			logger := slog.New(slog.DiscardHandler)
			dbStore, err := store.NewSQLiteStore(database, logger)
			if err != nil {
				return err
			}
			defer dbStore.Close()

			ix, err := dbStore.LoadIndex(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Manifest any            `json:"manifest"`
					Sources  map[string]int `json:"sources"`
				}{ix.Manifest(), ix.SourceCounts()})
			}

			m := ix.Manifest()
			cmd.Printf("Embedding model: %s\n", m.EmbeddingModel)
			cmd.Printf("Dimension:       %d\n", m.Dimension)
			cmd.Printf("Chunk size:      %d (overlap %d)\n", m.ChunkSize, m.ChunkOverlap)
			cmd.Printf("Chunks:          %d\n", m.ChunkCount)
			cmd.Printf("Built at:        %s\n", m.BuiltAt.Format("2006-01-02 15:04:05 MST"))

			counts := ix.SourceCounts()
			sources := make([]string, 0, len(counts))
			for s := range counts {
				sources = append(sources, s)
			}
			slices.Sort(sources)
			cmd.Println("\nDocuments:")
			for _, s := range sources {
				cmd.Printf("  %-50s %d\n", s, counts[s])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&database, "db", "", "index database file (default DATABASE_URL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
