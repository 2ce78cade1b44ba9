package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shopilots.com/chatbot/internal/chunker"
	"shopilots.com/chatbot/internal/corpus"
	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/index"
	"shopilots.com/chatbot/internal/llm"
)

// IndexStore persists whole indexes.
type IndexStore interface {
	ReplaceIndex(ctx context.Context, ix *index.Index) error
	LoadIndex(ctx context.Context) (*index.Index, error)
}

// ErrEmptyCorpus is returned when a build finds nothing to index.
var ErrEmptyCorpus = errors.New("corpus produced no chunks")

type BuilderConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	// RatePerSec limits embedding requests; zero means unlimited.
	RatePerSec  float64
	Concurrency int
}

// Builder runs the offline chunk, embed and persist pipeline.
type Builder struct {
	chunker  *chunker.Chunker
	embedder llm.Embedder
	store    IndexStore
	cfg      BuilderConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewBuilder(embedder llm.Embedder, store IndexStore, cfg BuilderConfig, logger *slog.Logger) (*Builder, error) {
	c, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Builder{
		chunker:  c,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Build chunks and embeds docs and replaces the persisted index with the result.
// Any embedding or storage failure aborts the build and leaves the previous
// index in place.
func (b *Builder) Build(ctx context.Context, docs []domain.Document) (*index.Index, error) {
	var chunks []domain.Chunk
	for _, doc := range docs {
		n := 0
		for c := range b.chunker.Chunks(doc) {
			if category := corpus.Categorize(c.Text); category != "" {
				c.Metadata[domain.MetadataCategory] = category
			}
			chunks = append(chunks, c)
			n++
		}
		b.logger.Debug("chunked document", "source", doc.SourceID, "chunks", n)
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}
	b.logger.Info("embedding chunks", "documents", len(docs), "chunks", len(chunks), "model", b.embedder.ModelName())

	vectors, err := b.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	ix, err := index.New(index.Manifest{
		EmbeddingModel: b.embedder.ModelName(),
		ChunkSize:      b.cfg.ChunkSize,
		ChunkOverlap:   b.cfg.ChunkOverlap,
		BuiltAt:        b.now().UTC(),
	}, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	if err := b.store.ReplaceIndex(ctx, ix); err != nil {
		return nil, fmt.Errorf("failed to persist index: %w", err)
	}
	b.logger.Info("index built", "chunks", ix.Len(), "dimension", ix.Manifest().Dimension)
	return ix, nil
}

// embedAll embeds chunks in batches, a bounded number at a time.
func (b *Builder) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	limit := rate.Inf
	if b.cfg.RatePerSec > 0 {
		limit = rate.Limit(b.cfg.RatePerSec)
	}
	limiter := rate.NewLimiter(limit, 1)

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	batches := (len(chunks) + b.cfg.BatchSize - 1) / b.cfg.BatchSize
	for batch := 0; batch < batches; batch++ {
		start := batch * b.cfg.BatchSize
		end := min(start+b.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
			}
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			vecs, err := b.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch %d/%d: %w", batch+1, batches, err)
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("%w: batch %d returned %d vectors for %d texts",
					domain.ErrEmbeddingUnavailable, batch+1, len(vecs), len(texts))
			}
			copy(vectors[start:end], vecs)
			b.logger.Debug("embedded batch", "batch", batch+1, "of", batches)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// LoadIndex reads the persisted index and checks it was built with embedder's
// model. Any problem is reported as domain.ErrIndexUnavailable.
func LoadIndex(ctx context.Context, store IndexStore, embedder llm.Embedder) (*index.Index, error) {
	ix, err := store.LoadIndex(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	if model := ix.Manifest().EmbeddingModel; model != embedder.ModelName() {
		return nil, fmt.Errorf("%w: index was built with %q but the embedder is %q, rebuild the index",
			domain.ErrIndexUnavailable, model, embedder.ModelName())
	}
	return ix, nil
}
