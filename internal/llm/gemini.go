package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"shopilots.com/chatbot/internal/domain"
)

const (
	DefaultGeminiChatModel      = "gemini-1.5-flash-latest"
	DefaultGeminiEmbeddingModel = "text-embedding-004"

	// geminiBatchLimit is the most texts BatchEmbedContents accepts per call.
	geminiBatchLimit = 100
)

var (
	_ Embedder  = (*Gemini)(nil)
	_ Completer = (*Gemini)(nil)
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int32
}

// Gemini is the remote completion and embedding backend. Without an API key it
// still constructs, and every call fails with domain.ErrNoAPIKey.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *slog.Logger
}

// NewGemini creates the Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultGeminiChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultGeminiEmbeddingModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}

	g := &Gemini{cfg: cfg, logger: logger}
	if cfg.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, remote model disabled")
		return g, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.client = client
	return g, nil
}

// Close releases the client.
func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return fmt.Errorf("error closing GenAI client: %w", err)
	}
	g.logger.Info("GenAI client closed")
	return nil
}

// Name returns the chat model name.
func (g *Gemini) Name() string { return g.cfg.ChatModel }

// ModelName returns the embedding model name.
func (g *Gemini) ModelName() string { return g.cfg.EmbeddingModel }

// Embed embeds one text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.client == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, domain.ErrNoAPIKey)
	}
	em := g.client.EmbeddingModel(g.cfg.EmbeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embedding request failed: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding data received from gemini", domain.ErrEmbeddingUnavailable)
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds texts with BatchEmbedContents, splitting at the API limit.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.client == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, domain.ErrNoAPIKey)
	}
	em := g.client.EmbeddingModel(g.cfg.EmbeddingModel)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatchLimit {
		end := min(start+geminiBatchLimit, len(texts))
		b := em.NewBatch()
		for _, t := range texts[start:end] {
			b.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("%w: gemini batch embedding failed: %w", domain.ErrEmbeddingUnavailable, err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts",
				domain.ErrEmbeddingUnavailable, len(res.Embeddings), end-start)
		}
		for i, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("%w: empty embedding for text %d", domain.ErrEmbeddingUnavailable, start+i)
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func (g *Gemini) model(system string) *genai.GenerativeModel {
	model := g.client.GenerativeModel(g.cfg.ChatModel)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	temp := g.cfg.Temperature
	maxTokens := g.cfg.MaxTokens
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}
	return model
}

// Complete returns the whole answer.
func (g *Gemini) Complete(ctx context.Context, p Prompt) (string, error) {
	if g.client == nil {
		return "", domain.ErrNoAPIKey
	}
	resp, err := g.model(p.System).GenerateContent(ctx, genai.Text(p.Body))
	if err != nil {
		return "", Classify(fmt.Errorf("gemini GenerateContent failed: %w", err))
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned an empty response", domain.ErrModelUnavailable)
	}
	return text, nil
}

// Stream starts a streamed completion.
func (g *Gemini) Stream(ctx context.Context, p Prompt) (TokenStream, error) {
	if g.client == nil {
		return nil, domain.ErrNoAPIKey
	}
	ctx, cancel := context.WithCancel(ctx)
	it := g.model(p.System).GenerateContentStream(ctx, genai.Text(p.Body))
	return &geminiStream{it: it, cancel: cancel}, nil
}

type geminiStream struct {
	it      *genai.GenerateContentResponseIterator
	cancel  context.CancelFunc
	pending []string
	once    sync.Once
}

func (s *geminiStream) Recv() (string, error) {
	for len(s.pending) == 0 {
		resp, err := s.it.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			return "", Classify(fmt.Errorf("gemini stream failed: %w", err))
		}
		for _, part := range candidateParts(resp) {
			if txt, ok := part.(genai.Text); ok && txt != "" {
				s.pending = append(s.pending, string(txt))
			}
		}
	}
	tok := s.pending[0]
	s.pending = s.pending[1:]
	return tok, nil
}

func (s *geminiStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}

func candidateParts(resp *genai.GenerateContentResponse) []genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, part := range candidateParts(resp) {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
