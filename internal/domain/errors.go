package domain

import "errors"

// Pipeline errors. Build-time failures abort an index build; query-time failures
// are converted into a fallback answer at the retriever/generator boundary.
var (
	// ErrInvalidConfiguration indicates bad chunking or retrieval parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidInput indicates a malformed request, such as a missing question.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates the embedding backend could not be reached
	// or returned malformed output.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrIndexUnavailable indicates the persisted vector index is missing, corrupt,
	// or was built with a different embedding model.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// Completion backend errors.

	// ErrNoAPIKey indicates the remote model has no credential configured.
	ErrNoAPIKey = errors.New("no API key configured")

	// ErrModelUnavailable indicates a transient completion backend failure.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelTimeout indicates the completion backend did not answer in time.
	ErrModelTimeout = errors.New("model timeout")

	// ErrModelAuth indicates the completion backend rejected the credential.
	ErrModelAuth = errors.New("model authentication failed")

	// ErrModelQuota indicates the completion backend quota is exhausted.
	ErrModelQuota = errors.New("model quota exhausted")

	// ErrStreamInterrupted indicates a stream ended before its terminal event,
	// either because the client went away or the upstream dropped.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrServiceUnavailable indicates no index and no model can serve the request.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Retryable reports whether a failed completion attempt may be retried once.
// Authentication and quota failures fall straight through to the next model.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrModelAuth), errors.Is(err, ErrModelQuota), errors.Is(err, ErrNoAPIKey):
		return false
	case errors.Is(err, ErrModelTimeout), errors.Is(err, ErrModelUnavailable):
		return true
	}
	return false
}
