package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/index"
	"shopilots.com/chatbot/internal/llm"
)

// productQuery is searched instead when a question about products matches nothing.
const productQuery = "shopilots AI sales agents products"

type RetrieverConfig struct {
	TopK         int
	Threshold    float32
	EmbedTimeout time.Duration
	// WithHistory prefixes the previous question to the embedded query text.
	WithHistory bool
}

// Retriever turns a question into ranked, threshold-filtered context.
type Retriever struct {
	embedder llm.Embedder
	cfg      RetrieverConfig
	logger   *slog.Logger
}

func NewRetriever(embedder llm.Embedder, cfg RetrieverConfig, logger *slog.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 5 * time.Second
	}
	return &Retriever{embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve never fails: embedding or index problems yield an empty result whose
// Err says why, which the caller answers without context.
func (r *Retriever) Retrieve(ctx context.Context, ix *index.Index, question string, history []domain.Turn) domain.RetrievalResult {
	if ix == nil {
		return domain.RetrievalResult{Err: fmt.Errorf("%w: no index loaded", domain.ErrIndexUnavailable)}
	}
	if ix.Len() == 0 {
		return domain.RetrievalResult{}
	}

	query := question
	if r.cfg.WithHistory && len(history) > 0 {
		query = history[len(history)-1].Question + "\n" + question
	}

	result := r.search(ctx, ix, query)
	if result.Empty() && result.Err == nil && strings.Contains(strings.ToLower(question), "product") {
		r.logger.Debug("no context for product question, retrying with generic product query")
		result = r.search(ctx, ix, productQuery)
	}
	return result
}

func (r *Retriever) search(ctx context.Context, ix *index.Index, query string) domain.RetrievalResult {
	ectx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	vec, err := r.embedder.Embed(ectx, query)
	cancel()
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		r.logger.Warn("query embedding failed, answering without context", "error", err)
		return domain.RetrievalResult{Err: err}
	}

	candidates, err := ix.Query(vec, r.cfg.TopK)
	if err != nil {
		r.logger.Error("index query failed, answering without context", "error", err)
		return domain.RetrievalResult{Err: err}
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Score >= r.cfg.Threshold {
			kept = append(kept, c)
		}
	}
	if len(kept) < len(candidates) {
		r.logger.Debug("dropped chunks below threshold",
			"dropped", len(candidates)-len(kept), "threshold", r.cfg.Threshold)
	}
	return domain.RetrievalResult{Chunks: kept}
}
