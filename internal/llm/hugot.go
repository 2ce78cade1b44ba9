package llm

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"shopilots.com/chatbot/internal/domain"
)

var _ Embedder = (*Hugot)(nil)

// Hugot runs a sentence-transformer model in process with the pure Go backend.
type Hugot struct {
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	modelName string
	// the Go backend pipeline is not safe for concurrent runs
	mu sync.Mutex
}

// NewHugot loads the ONNX model found at modelPath.
func NewHugot(modelPath string) (*Hugot, error) {
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	return &Hugot{
		session:   session,
		pipeline:  sentencePipeline,
		modelName: "hugot:" + filepath.Base(modelPath),
	}, nil
}

// ModelName returns the model directory name.
func (h *Hugot) ModelName() string { return h.modelName }

// Embed embeds one text.
func (h *Hugot) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := h.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs the pipeline once over all texts.
func (h *Hugot) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	h.mu.Lock()
	result, err := h.pipeline.RunPipeline(texts)
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate embedding: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: hugot returned %d embeddings for %d texts",
			domain.ErrEmbeddingUnavailable, len(result.Embeddings), len(texts))
	}
	return result.Embeddings, nil
}

// Close destroys the session.
func (h *Hugot) Close() error {
	return h.session.Destroy()
}
