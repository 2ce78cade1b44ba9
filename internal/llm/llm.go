// Package llm holds the embedding and completion backends behind two small
// capability interfaces, selected once at startup from configuration.
package llm

import (
	"context"
	"strings"

	"shopilots.com/chatbot/internal/domain"
)

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	// Embed returns the vector of one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName identifies the model; vectors from different models are not comparable.
	ModelName() string
}

// Completer produces answers from a prompt.
type Completer interface {
	// Name is reported to callers as model_used.
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
	// Stream starts a completion and returns its increments. Errors that occur
	// before the first increment may be returned either here or by the first Recv.
	Stream(ctx context.Context, p Prompt) (TokenStream, error)
}

// TokenStream is a finite, non-restartable sequence of text increments.
type TokenStream interface {
	// Recv returns the next increment. It returns io.EOF after the last
	// increment of a cleanly finished completion, and any other error when the
	// completion was cut short.
	Recv() (string, error)
	// Close releases the upstream connection. It is safe to call more than once.
	Close() error
}

// Prompt is the assembled input to a completion model.
type Prompt struct {
	System   string
	Body     string // context, history and question
	Question string
	// Context is the retrieval result the body was built from, for backends that
	// answer without a model.
	Context []domain.ScoredChunk
}

// String flattens the prompt for backends without a separate system slot.
func (p Prompt) String() string {
	if p.System == "" {
		return p.Body
	}
	return p.System + "\n\n" + p.Body
}

var answerPrefixes = []string{"Refined Answer:", "Answer:", "Response:"}

// CleanAnswer trims whitespace and a leading "Answer:"-style label that some
// models echo back from the prompt.
func CleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range answerPrefixes {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}
