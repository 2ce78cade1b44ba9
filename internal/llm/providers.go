package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shopilots.com/chatbot/internal/config"
	"shopilots.com/chatbot/internal/domain"
)

// Providers are the backends chosen once at startup.
type Providers struct {
	Embedder Embedder
	// Completers are the model tiers in fallback order, remote first. The static
	// answer is not included.
	Completers []Completer

	gemini *Gemini
	hugot  *Hugot
}

// NewProviders selects the embedder named by cfg.EmbeddingProvider and the
// completion models that are configured.
func NewProviders(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Providers, error) {
	gemini, err := NewGemini(ctx, GeminiConfig{
		APIKey:         cfg.GeminiAPIKey,
		ChatModel:      cfg.GeminiChatModel,
		EmbeddingModel: cfg.GeminiEmbeddingModel,
	}, logger)
	if err != nil {
		return nil, err
	}
	p := &Providers{gemini: gemini, Completers: []Completer{gemini}}

	var ollama *Ollama
	if cfg.LocalModelEnabled || cfg.EmbeddingProvider == "ollama" {
		ollama = NewOllama(OllamaConfig{
			BaseURL:        cfg.OllamaURL,
			Model:          cfg.OllamaModel,
			EmbeddingModel: cfg.OllamaEmbeddingModel,
		})
	}
	if cfg.LocalModelEnabled {
		p.Completers = append(p.Completers, ollama)
	}

	switch cfg.EmbeddingProvider {
	case "gemini", "":
		p.Embedder = gemini
	case "ollama":
		p.Embedder = ollama
	case "hugot":
		h, err := NewHugot(cfg.HugotModelPath)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		p.hugot = h
		p.Embedder = h
	default:
		p.Close()
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidConfiguration, cfg.EmbeddingProvider)
	}
	logger.Info("model providers ready", "embedder", p.Embedder.ModelName(), "completers", len(p.Completers))
	return p, nil
}

// Close releases the clients and local models.
func (p *Providers) Close() error {
	var errs []error
	if p.gemini != nil {
		errs = append(errs, p.gemini.Close())
	}
	if p.hugot != nil {
		errs = append(errs, p.hugot.Close())
	}
	return errors.Join(errs...)
}
