package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopilots.com/chatbot/internal/domain"
)

func TestBuilder(t *testing.T) {
	ctx := context.Background()

	t.Run("Builds and persists the whole corpus", func(t *testing.T) {
		embedder := &keywordEmbedder{}
		store := &memStore{}
		b, err := NewBuilder(embedder, store, BuilderConfig{ChunkSize: 500, ChunkOverlap: 50, BatchSize: 2, RatePerSec: 1000}, discardLogger())
		require.NoError(t, err)

		ix, err := b.Build(ctx, testCorpus)
		require.NoError(t, err)

		assert.Equal(t, 3, ix.Len())
		assert.Equal(t, 1, store.writes)
		assert.Same(t, ix, store.ix)
		assert.EqualValues(t, 2, embedder.batches.Load(), "three chunks in batches of two")

		m := ix.Manifest()
		assert.Equal(t, "keyword", m.EmbeddingModel)
		assert.Equal(t, len(vocabulary)+1, m.Dimension)
		assert.Equal(t, 500, m.ChunkSize)
		assert.Equal(t, 50, m.ChunkOverlap)
		assert.Equal(t, 3, m.ChunkCount)
		assert.False(t, m.BuiltAt.IsZero())

		byCategory := map[string]string{}
		for i := range ix.Len() {
			c := ix.Chunk(i)
			byCategory[c.SourceID] = c.Category()
		}
		assert.Equal(t, map[string]string{
			"website.md": "Website Agent",
			"call.md":    "Call Agent",
			"social.md":  "Social Media Agent",
		}, byCategory)
	})

	t.Run("Embedding failure leaves the previous index", func(t *testing.T) {
		previous := buildIndex(t, &keywordEmbedder{}, testCorpus[0])
		store := &memStore{ix: previous}
		embedder := &keywordEmbedder{err: fmt.Errorf("%w: connection refused", domain.ErrEmbeddingUnavailable)}
		b, err := NewBuilder(embedder, store, BuilderConfig{ChunkSize: 500, ChunkOverlap: 50}, discardLogger())
		require.NoError(t, err)

		_, err = b.Build(ctx, testCorpus)
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Zero(t, store.writes)
		assert.Same(t, previous, store.ix)
	})

	t.Run("Storage failure is reported", func(t *testing.T) {
		store := &memStore{err: errors.New("disk full")}
		b, err := NewBuilder(&keywordEmbedder{}, store, BuilderConfig{ChunkSize: 500, ChunkOverlap: 50}, discardLogger())
		require.NoError(t, err)

		_, err = b.Build(ctx, testCorpus)
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("Empty corpus fails", func(t *testing.T) {
		b, err := NewBuilder(&keywordEmbedder{}, &memStore{}, BuilderConfig{ChunkSize: 500, ChunkOverlap: 50}, discardLogger())
		require.NoError(t, err)

		_, err = b.Build(ctx, []domain.Document{{SourceID: "blank.md", Text: "  \n\t "}})
		assert.ErrorIs(t, err, ErrEmptyCorpus)
	})

	t.Run("Invalid chunking parameters", func(t *testing.T) {
		_, err := NewBuilder(&keywordEmbedder{}, &memStore{}, BuilderConfig{ChunkSize: 100, ChunkOverlap: 100}, discardLogger())
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Cancelled build writes nothing", func(t *testing.T) {
		store := &memStore{}
		b, err := NewBuilder(&keywordEmbedder{}, store, BuilderConfig{ChunkSize: 500, ChunkOverlap: 50, RatePerSec: 1}, discardLogger())
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = b.Build(cctx, testCorpus)
		assert.Error(t, err)
		assert.Zero(t, store.writes)
	})
}

func TestLoadIndex(t *testing.T) {
	ctx := context.Background()
	ix := buildIndex(t, &keywordEmbedder{model: "model-a"}, testCorpus...)

	t.Run("Matching model", func(t *testing.T) {
		loaded, err := LoadIndex(ctx, &memStore{ix: ix}, &keywordEmbedder{model: "model-a"})
		require.NoError(t, err)
		assert.Same(t, ix, loaded)
	})

	t.Run("Different embedding model requires a rebuild", func(t *testing.T) {
		_, err := LoadIndex(ctx, &memStore{ix: ix}, &keywordEmbedder{model: "model-b"})
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})

	t.Run("Nothing persisted", func(t *testing.T) {
		_, err := LoadIndex(ctx, &memStore{}, &keywordEmbedder{})
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})
}
