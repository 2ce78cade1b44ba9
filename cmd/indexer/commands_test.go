package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopilots.com/chatbot/internal/domain"
)

func runIndexer(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexer(t *testing.T) {
	dir := t.TempDir()
	corpusDir := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(corpusDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpusDir, "website.md"),
		[]byte("# Website Agent\n\nWebsite Agent embeds on your e-commerce site."), 0o644))
	db := filepath.Join(dir, "index.db")

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("CORPUS_DIR", corpusDir)
	t.Setenv("DATABASE_URL", db)

	t.Run("Overlap not smaller than size", func(t *testing.T) {
		_, err := runIndexer(t, "build", "--chunk-size", "100", "--chunk-overlap", "100")
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Non-positive chunk size is rejected", func(t *testing.T) {
		_, err := runIndexer(t, "build", "--chunk-size", "0", "--chunk-overlap", "10")
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Negative overlap is rejected as given", func(t *testing.T) {
		_, err := runIndexer(t, "build", "--chunk-size", "100", "--chunk-overlap", "-5")
		require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		assert.Contains(t, err.Error(), "-5")
	})

	t.Run("Embedding backend unavailable fails the build", func(t *testing.T) {
		_, err := runIndexer(t, "build", "--chunk-size", "100", "--chunk-overlap", "10")
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("Nothing was written", func(t *testing.T) {
		_, err := runIndexer(t, "stats", "--db", db)
		assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	})
}
