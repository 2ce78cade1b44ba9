// Package index is the in-memory vector index queried at request time. An Index
// is immutable once built; rebuilding produces a new Index that is published
// through a Holder.
package index

import (
	"container/heap"
	"fmt"
	"time"

	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/utils"
)

// Manifest describes how an index was built. Vectors are only comparable with
// query vectors from the same embedding model and dimension.
type Manifest struct {
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	ChunkSize      int       `json:"chunk_size"`
	ChunkOverlap   int       `json:"chunk_overlap"`
	ChunkCount     int       `json:"chunk_count"`
	BuiltAt        time.Time `json:"built_at"`
}

// Index holds chunks and their vectors in insertion order.
type Index struct {
	manifest Manifest
	chunks   []domain.Chunk
	vectors  [][]float32
	norms    []float32
}

// New validates and wraps chunks and vectors, which must correspond one to one.
// A zero Manifest.Dimension is taken from the first vector.
func New(manifest Manifest, chunks []domain.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrIndexUnavailable, len(chunks), len(vectors))
	}
	if manifest.Dimension == 0 && len(vectors) > 0 {
		manifest.Dimension = len(vectors[0])
	}
	norms := make([]float32, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 || len(v) != manifest.Dimension {
			return nil, fmt.Errorf("%w: chunk %s has dimension %d, want %d",
				domain.ErrIndexUnavailable, chunks[i].ID, len(v), manifest.Dimension)
		}
		norms[i] = utils.Magnitude(v)
	}
	manifest.ChunkCount = len(chunks)

	return &Index{
		manifest: manifest,
		chunks:   append([]domain.Chunk(nil), chunks...),
		vectors:  append([][]float32(nil), vectors...),
		norms:    norms,
	}, nil
}

// Manifest returns the build description. A nil Index has the zero Manifest.
func (ix *Index) Manifest() Manifest {
	if ix == nil {
		return Manifest{}
	}
	return ix.manifest
}

// Len returns the number of chunks.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.chunks)
}

// Chunk returns the i-th chunk in insertion order.
func (ix *Index) Chunk(i int) domain.Chunk { return ix.chunks[i] }

// Vector returns the i-th vector in insertion order. The slice must not be modified.
func (ix *Index) Vector(i int) []float32 { return ix.vectors[i] }

// SourceCounts returns the number of chunks per source document.
func (ix *Index) SourceCounts() map[string]int {
	counts := make(map[string]int)
	for i := 0; i < ix.Len(); i++ {
		counts[ix.chunks[i].SourceID]++
	}
	return counts
}

// Query returns the k chunks most similar to vec by cosine similarity, best
// first, ties broken by insertion order. An empty (or nil) index yields an
// empty result. A vector of the wrong dimension means the index was built with
// another embedding model and yields domain.ErrIndexUnavailable.
func (ix *Index) Query(vec []float32, k int) ([]domain.ScoredChunk, error) {
	if ix.Len() == 0 || k <= 0 {
		return []domain.ScoredChunk{}, nil
	}
	if len(vec) != ix.manifest.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d (built with %s)",
			domain.ErrIndexUnavailable, len(vec), ix.manifest.Dimension, ix.manifest.EmbeddingModel)
	}

	qNorm := utils.Magnitude(vec)
	h := make(candidateHeap, 0, k)
	for i, v := range ix.vectors {
		score, err := utils.CosineWithMagnitudes(vec, qNorm, v, ix.norms[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
		}
		c := candidate{score: score, seq: i}
		if h.Len() < k {
			heap.Push(&h, c)
		} else if c.better(h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	results := make([]domain.ScoredChunk, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		c := heap.Pop(&h).(candidate)
		results[i] = domain.ScoredChunk{Chunk: ix.chunks[c.seq], Score: c.score}
	}
	return results, nil
}

type candidate struct {
	score float32
	seq   int
}

// better orders by score, then by earlier insertion.
func (c candidate) better(o candidate) bool {
	if c.score != o.score {
		return c.score > o.score
	}
	return c.seq < o.seq
}

// candidateHeap keeps the worst retained candidate at the root.
type candidateHeap []candidate

func (h candidateHeap) Len() int           { return len(h) }
func (h candidateHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
