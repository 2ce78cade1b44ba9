package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"shopilots.com/chatbot/internal/domain"
	"shopilots.com/chatbot/internal/llm"
)

// Tier is one entry of the fallback cascade.
type Tier struct {
	Completer llm.Completer
	// Retry allows one more attempt after a transient failure.
	Retry bool
}

// Generation is a finished, non-streamed answer.
type Generation struct {
	Text     string
	Model    string
	Reason   domain.FallbackReason
	Attempts int
}

// Generator tries its tiers in order until one produces an answer. The reason
// reported for a fallback is taken from the first tier that failed.
type Generator struct {
	tiers   []Tier
	timeout time.Duration
	logger  *slog.Logger
}

func NewGenerator(tiers []Tier, timeout time.Duration, logger *slog.Logger) *Generator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Generator{tiers: tiers, timeout: timeout, logger: logger}
}

// reasonFor maps a completion error to the fallback reason it is reported as.
func reasonFor(err error) domain.FallbackReason {
	switch {
	case errors.Is(err, domain.ErrNoAPIKey):
		return domain.FallbackNoAPIKey
	case errors.Is(err, domain.ErrModelTimeout):
		return domain.FallbackAPITimeout
	case errors.Is(err, domain.ErrModelAuth):
		return domain.FallbackAPIAuthError
	}
	return domain.FallbackAPIError
}

func (t Tier) maxAttempts() int {
	if t.Retry {
		return 2
	}
	return 1
}

func (g *Generator) Generate(ctx context.Context, p llm.Prompt) (Generation, error) {
	var (
		reason   domain.FallbackReason
		attempts int
		lastErr  error
	)
	for _, tier := range g.tiers {
		name := tier.Completer.Name()
		for attempt := 1; attempt <= tier.maxAttempts(); attempt++ {
			attempts++
			text, err := g.complete(ctx, tier.Completer, p)
			if err == nil {
				return Generation{Text: text, Model: name, Reason: reason, Attempts: attempts}, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Generation{}, ctxErr
			}
			lastErr = err
			g.logger.Warn("completion attempt failed", "model", name, "attempt", attempt, "error", err)
			if !domain.Retryable(err) {
				break
			}
		}
		if reason == domain.FallbackNone {
			reason = reasonFor(lastErr)
		}
	}
	return Generation{}, fmt.Errorf("%w: all models failed: %w", domain.ErrServiceUnavailable, lastErr)
}

func (g *Generator) complete(ctx context.Context, c llm.Completer, p llm.Prompt) (string, error) {
	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	text, err := c.Complete(actx, p)
	if err != nil {
		return "", llm.Classify(err)
	}
	text = llm.CleanAnswer(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty answer", domain.ErrModelUnavailable)
	}
	return text, nil
}

// Stream starts a streamed answer. Retries and fallbacks only happen until the
// first increment arrives; the per-attempt timeout bounds the wait for it.
func (g *Generator) Stream(ctx context.Context, p llm.Prompt) (*GenerationStream, error) {
	var (
		reason   domain.FallbackReason
		attempts int
		lastErr  error
	)
	for _, tier := range g.tiers {
		name := tier.Completer.Name()
		for attempt := 1; attempt <= tier.maxAttempts(); attempt++ {
			attempts++
			s, err := g.open(ctx, tier.Completer, p)
			if err == nil {
				s.Model, s.Reason, s.Attempts = name, reason, attempts
				return s, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			g.logger.Warn("stream attempt failed", "model", name, "attempt", attempt, "error", err)
			if !domain.Retryable(err) {
				break
			}
		}
		if reason == domain.FallbackNone {
			reason = reasonFor(lastErr)
		}
	}
	return nil, fmt.Errorf("%w: all models failed: %w", domain.ErrServiceUnavailable, lastErr)
}

func (g *Generator) open(ctx context.Context, c llm.Completer, p llm.Prompt) (*GenerationStream, error) {
	sctx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(g.timeout, func() { cancel(domain.ErrModelTimeout) })

	fail := func(ts llm.TokenStream, err error) (*GenerationStream, error) {
		timer.Stop()
		if ts != nil {
			ts.Close()
		}
		if errors.Is(context.Cause(sctx), domain.ErrModelTimeout) {
			err = fmt.Errorf("%w: no output within %s", domain.ErrModelTimeout, g.timeout)
		}
		cancel(nil)
		return nil, llm.Classify(err)
	}

	ts, err := c.Stream(sctx, p)
	if err != nil {
		return fail(nil, err)
	}
	var first string
	for first == "" && err == nil {
		first, err = ts.Recv()
	}
	if err == io.EOF {
		err = fmt.Errorf("%w: empty answer", domain.ErrModelUnavailable)
	}
	if err != nil {
		return fail(ts, err)
	}
	if !timer.Stop() {
		// The deadline fired as the first token arrived; sctx is already cancelled.
		return fail(ts, domain.ErrModelTimeout)
	}
	return &GenerationStream{upstream: ts, cancel: cancel, first: first, pending: true}, nil
}

// GenerationStream yields the increments of one answer. It is not safe for
// concurrent use.
type GenerationStream struct {
	Model    string
	Reason   domain.FallbackReason
	Attempts int

	upstream llm.TokenStream
	cancel   context.CancelCauseFunc
	first    string
	pending  bool
}

// Recv returns io.EOF after the last increment of a complete answer. Any other
// error wraps domain.ErrStreamInterrupted; the stream is never restarted.
func (s *GenerationStream) Recv() (string, error) {
	if s.pending {
		s.pending = false
		return s.first, nil
	}
	tok, err := s.upstream.Recv()
	switch {
	case err == nil:
		return tok, nil
	case err == io.EOF:
		return "", io.EOF
	case errors.Is(err, domain.ErrStreamInterrupted):
		return "", err
	}
	return "", fmt.Errorf("%w: %w", domain.ErrStreamInterrupted, err)
}

// Close stops generation and releases the upstream connection.
func (s *GenerationStream) Close() error {
	s.cancel(domain.ErrStreamInterrupted)
	return s.upstream.Close()
}
