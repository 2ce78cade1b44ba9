// Package chunker splits documents into overlapping fixed-size character windows.
package chunker

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/google/uuid"

	"shopilots.com/chatbot/internal/config"
	"shopilots.com/chatbot/internal/domain"
)

// chunkNamespace seeds deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c0a52-4a37-4b8e-9d0e-3c2f5b7a9e11")

// Chunker produces chunks of at most Size runes, each sharing Overlap runes with
// its predecessor.
type Chunker struct {
	size    int
	overlap int
}

// New validates the parameters and returns a Chunker.
func New(size, overlap int) (*Chunker, error) {
	if err := config.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the target chunk length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns a lazy sequence over the document's chunks. The sequence can be
// ranged over any number of times and yields the same chunks each time.
// Empty or whitespace-only documents yield nothing.
func (c *Chunker) Chunks(doc domain.Document) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		if strings.TrimSpace(doc.Text) == "" {
			return
		}
		runes := []rune(doc.Text)
		n := len(runes)
		step := c.size - c.overlap

		for i, start := 0, 0; ; i, start = i+1, start+step {
			end := min(start+c.size, n)
			text := string(runes[start:end])
			chunk := domain.Chunk{
				ID:       c.chunkID(doc.SourceID, start, text),
				SourceID: doc.SourceID,
				Text:     text,
				Position: start,
				Index:    i,
				Metadata: map[string]string{},
			}
			if !yield(chunk) || end == n {
				return
			}
		}
	}
}

// Split collects every chunk of the document.
func (c *Chunker) Split(doc domain.Document) []domain.Chunk {
	return slices.Collect(c.Chunks(doc))
}

// chunkID is stable for identical source, parameters, offset and content.
func (c *Chunker) chunkID(sourceID string, position int, text string) string {
	key := fmt.Sprintf("%s\x00%d\x00%d\x00%d\x00%s", sourceID, c.size, c.overlap, position, text)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// Reassemble rebuilds the original text from consecutive chunks of one document by
// dropping the overlapping prefix of every chunk after the first.
func Reassemble(chunks []domain.Chunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		runes := []rune(ch.Text)
		b.WriteString(string(runes[min(overlap, len(runes)):]))
	}
	return b.String()
}
