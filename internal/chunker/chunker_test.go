package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopilots.com/chatbot/internal/domain"
)

func TestNew(t *testing.T) {
	t.Run("Valid parameters", func(t *testing.T) {
		c, err := New(100, 20)
		require.NoError(t, err)
		assert.Equal(t, 100, c.Size())
		assert.Equal(t, 20, c.Overlap())
	})

	t.Run("Overlap not smaller than size always fails", func(t *testing.T) {
		for size := 1; size <= 40; size++ {
			for overlap := size; overlap <= size+5; overlap++ {
				_, err := New(size, overlap)
				assert.ErrorIs(t, err, domain.ErrInvalidConfiguration, "size=%d overlap=%d", size, overlap)
			}
		}
	})

	t.Run("Non-positive size fails", func(t *testing.T) {
		_, err := New(0, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		_, err = New(-10, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})

	t.Run("Negative overlap fails", func(t *testing.T) {
		_, err := New(10, -1)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
	})
}

func TestChunks(t *testing.T) {
	t.Run("Short document yields exactly one chunk", func(t *testing.T) {
		c, _ := New(100, 20)
		doc := domain.Document{SourceID: "short.md", Text: "Website Agent embeds on your e-commerce site."}

		chunks := c.Split(doc)

		require.Len(t, chunks, 1)
		assert.Equal(t, doc.Text, chunks[0].Text)
		assert.Equal(t, 0, chunks[0].Position)
		assert.Equal(t, "short.md", chunks[0].SourceID)
	})

	t.Run("Empty document yields nothing", func(t *testing.T) {
		c, _ := New(100, 20)
		assert.Empty(t, c.Split(domain.Document{SourceID: "empty.md", Text: "  \n\t"}))
	})

	t.Run("Zero overlap yields disjoint chunks", func(t *testing.T) {
		c, _ := New(4, 0)
		chunks := c.Split(domain.Document{SourceID: "a", Text: "abcdefghij"})

		texts := make([]string, 0, len(chunks))
		for _, ch := range chunks {
			texts = append(texts, ch.Text)
		}
		assert.Equal(t, []string{"abcd", "efgh", "ij"}, texts)
	})

	t.Run("Consecutive chunks share the overlap", func(t *testing.T) {
		c, _ := New(5, 2)
		chunks := c.Split(domain.Document{SourceID: "a", Text: "abcdefghijkl"})

		require.Greater(t, len(chunks), 1)
		for i := 1; i < len(chunks); i++ {
			prev := []rune(chunks[i-1].Text)
			cur := []rune(chunks[i].Text)
			assert.Equal(t, string(prev[len(prev)-2:]), string(cur[:2]))
			assert.Equal(t, chunks[i-1].Position+3, chunks[i].Position)
		}
	})

	t.Run("Sequence is restartable", func(t *testing.T) {
		c, _ := New(7, 3)
		doc := domain.Document{SourceID: "a", Text: strings.Repeat("shopilots ", 10)}
		seq := c.Chunks(doc)

		var first, second []domain.Chunk
		for ch := range seq {
			first = append(first, ch)
		}
		for ch := range seq {
			second = append(second, ch)
		}
		assert.Equal(t, first, second)
	})

	t.Run("Early break stops the sequence", func(t *testing.T) {
		c, _ := New(3, 1)
		count := 0
		for range c.Chunks(domain.Document{SourceID: "a", Text: strings.Repeat("x", 100)}) {
			count++
			if count == 2 {
				break
			}
		}
		assert.Equal(t, 2, count)
	})

	t.Run("Multi-byte text is split on rune boundaries", func(t *testing.T) {
		c, _ := New(3, 1)
		chunks := c.Split(domain.Document{SourceID: "a", Text: "héllo wörld ☕☕☕"})
		for _, ch := range chunks {
			assert.True(t, utf8.ValidString(ch.Text))
		}
	})

	t.Run("Ids are stable and unique", func(t *testing.T) {
		c, _ := New(10, 2)
		doc := domain.Document{SourceID: "a", Text: strings.Repeat("abc ", 20)}

		first := c.Split(doc)
		second := c.Split(doc)
		seen := map[string]bool{}
		for i := range first {
			assert.Equal(t, first[i].ID, second[i].ID)
			assert.False(t, seen[first[i].ID])
			seen[first[i].ID] = true
		}

		other, _ := New(10, 3)
		assert.NotEqual(t, first[0].ID, other.Split(doc)[0].ID)
	})
}

func TestChunksReconstructDocument(t *testing.T) {
	texts := []string{
		"a",
		"Website Agent embeds on your e-commerce site.",
		strings.Repeat("Shopilots deploys AI sales agents. ", 40),
		"ünïcödé ☕ text with emoji 🚀 and accents é è ê",
	}
	params := [][2]int{{1, 0}, {2, 1}, {5, 0}, {5, 4}, {16, 3}, {100, 20}, {1000, 200}}

	for _, text := range texts {
		for _, p := range params {
			c, err := New(p[0], p[1])
			require.NoError(t, err)

			chunks := c.Split(domain.Document{SourceID: "doc", Text: text})

			assert.Equal(t, text, Reassemble(chunks, p[1]), "size=%d overlap=%d", p[0], p[1])
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), p[0])
			}
		}
	}
}
