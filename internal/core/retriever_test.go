package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopilots.com/chatbot/internal/domain"
)

func TestRetriever(t *testing.T) {
	ctx := context.Background()
	ix := buildIndex(t, &keywordEmbedder{}, testCorpus...)

	t.Run("Top result is the matching chunk", func(t *testing.T) {
		r := NewRetriever(&keywordEmbedder{}, RetrieverConfig{TopK: 4, Threshold: 0.35}, discardLogger())
		result := r.Retrieve(ctx, ix, "What is the Website Agent?", nil)

		require.NoError(t, result.Err)
		require.NotEmpty(t, result.Chunks)
		assert.Equal(t, "website.md", result.Chunks[0].Chunk.SourceID)
		assert.InDelta(t, 1.0, result.Chunks[0].Score, 1e-4)
		assert.Equal(t, "Website Agent", result.MatchedCategory())
		for _, sc := range result.Chunks {
			assert.GreaterOrEqual(t, sc.Score, float32(0.35))
		}
	})

	t.Run("Candidates below the threshold are discarded", func(t *testing.T) {
		r := NewRetriever(&keywordEmbedder{}, RetrieverConfig{TopK: 4, Threshold: 0.35}, discardLogger())
		result := r.Retrieve(ctx, ix, "How long does shipping take?", nil)

		assert.True(t, result.Empty())
		assert.NoError(t, result.Err)
	})

	t.Run("TopK bounds the result", func(t *testing.T) {
		r := NewRetriever(&keywordEmbedder{}, RetrieverConfig{TopK: 1, Threshold: -1}, discardLogger())
		result := r.Retrieve(ctx, ix, "agent", nil)
		assert.Len(t, result.Chunks, 1)
	})

	t.Run("No index means no embedding call", func(t *testing.T) {
		embedder := &keywordEmbedder{}
		r := NewRetriever(embedder, RetrieverConfig{TopK: 4}, discardLogger())
		result := r.Retrieve(ctx, nil, "What is the Website Agent?", nil)

		assert.True(t, result.Empty())
		assert.ErrorIs(t, result.Err, domain.ErrIndexUnavailable)
		assert.Zero(t, embedder.calls.Load())
	})

	t.Run("Embedding failure becomes an empty result", func(t *testing.T) {
		r := NewRetriever(&keywordEmbedder{err: errors.New("connection refused")}, RetrieverConfig{TopK: 4}, discardLogger())
		result := r.Retrieve(ctx, ix, "What is the Website Agent?", nil)

		assert.True(t, result.Empty())
		assert.ErrorIs(t, result.Err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("Product questions fall back to a generic product search", func(t *testing.T) {
		embedder := &keywordEmbedder{}
		r := NewRetriever(embedder, RetrieverConfig{TopK: 4, Threshold: 0.35}, discardLogger())
		result := r.Retrieve(ctx, ix, "Tell me about your product range", nil)

		assert.False(t, result.Empty())
		assert.EqualValues(t, 2, embedder.calls.Load())
		assert.Equal(t, productQuery, embedder.lastQuery())
	})

	t.Run("Previous question joins the query when enabled", func(t *testing.T) {
		embedder := &keywordEmbedder{}
		r := NewRetriever(embedder, RetrieverConfig{TopK: 4, WithHistory: true}, discardLogger())
		history := []domain.Turn{
			{Question: "first", Answer: "a"},
			{Question: "Tell me about the Call Agent", Answer: "b"},
		}
		r.Retrieve(ctx, ix, "How much is it?", history)

		assert.Equal(t, "Tell me about the Call Agent\nHow much is it?", embedder.lastQuery())
	})
}
