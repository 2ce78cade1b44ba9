// Package domain holds the data model shared by the retrieval and generation pipeline.
package domain

import "time"

// Document is one source file of the corpus. Immutable once loaded.
type Document struct {
	SourceID string // path relative to the corpus root, forward slashes
	Title    string
	Text     string
}

// Chunk is a contiguous run of a Document's text, the unit of retrieval.
type Chunk struct {
	ID       string            `json:"chunk_id"`
	SourceID string            `json:"source_id"`
	Text     string            `json:"text"`
	Position int               `json:"position"` // rune offset within the source
	Index    int               `json:"index"`    // ordinal within the source
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Category returns the category tag inferred for the chunk, if any.
func (c Chunk) Category() string {
	return c.Metadata[MetadataCategory]
}

// MetadataCategory is the chunk metadata key holding the product category.
const MetadataCategory = "category"

// ScoredChunk pairs a chunk with its cosine similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// RetrievalResult is the ranked, threshold-filtered context for one question.
// An empty result is not an error; it triggers the no-context fallback.
type RetrievalResult struct {
	Chunks []ScoredChunk
	// Err records why retrieval produced nothing, when a backend failed.
	Err error
}

// Empty reports whether no chunk survived retrieval.
func (r RetrievalResult) Empty() bool {
	return len(r.Chunks) == 0
}

// MatchedCategory returns the category of the best chunk.
func (r RetrievalResult) MatchedCategory() string {
	if r.Empty() {
		return ""
	}
	return r.Chunks[0].Chunk.Category()
}

// Sources converts the result into caller-facing chunk metadata.
func (r RetrievalResult) Sources() []Source {
	sources := make([]Source, 0, len(r.Chunks))
	for _, sc := range r.Chunks {
		sources = append(sources, Source{
			ChunkID:  sc.Chunk.ID,
			SourceID: sc.Chunk.SourceID,
			Position: sc.Chunk.Position,
			Category: sc.Chunk.Category(),
			Score:    sc.Score,
		})
	}
	return sources
}

// Source is the chunk metadata returned alongside an answer.
type Source struct {
	ChunkID  string  `json:"chunk_id"`
	SourceID string  `json:"document"`
	Position int     `json:"position"`
	Category string  `json:"category,omitempty"`
	Score    float32 `json:"score"`
}

// Turn is one question and its answer within a session.
type Turn struct {
	Question string
	Answer   string
}

// FallbackReason explains why the primary retrieval + remote model path was not used.
type FallbackReason string

const (
	FallbackNone              FallbackReason = ""
	FallbackNoAPIKey          FallbackReason = "no_api_key"
	FallbackAPIError          FallbackReason = "api_error"
	FallbackAPITimeout        FallbackReason = "api_timeout"
	FallbackAPIAuthError      FallbackReason = "api_auth_error"
	FallbackNoRelevantContext FallbackReason = "no_relevant_context"
)

// Answer is the complete result of one query.
type Answer struct {
	Text           string         `json:"answer"`
	Sources        []Source       `json:"sources"`
	ModelUsed      string         `json:"model_used"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	Elapsed        time.Duration  `json:"-"`
	ElapsedMS      int64          `json:"elapsed_ms"`
}
