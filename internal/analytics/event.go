// Package analytics records one event per answered question and derives the
// chatbot KPIs from them. Recording is fire-and-forget for the answer path.
package analytics

import (
	"time"

	"shopilots.com/chatbot/internal/domain"
)

// Event is the record emitted for every query, including failed and fallback ones.
type Event struct {
	ID              string                `json:"id"`
	Timestamp       time.Time             `json:"timestamp"`
	SessionID       string                `json:"session_id"`
	Question        string                `json:"question"`
	MatchedCategory string                `json:"matched_category,omitempty"`
	FallbackReason  domain.FallbackReason `json:"fallback_reason,omitempty"`
	ModelUsed       string                `json:"model_used"`
	LatencyMS       int64                 `json:"latency_ms"`
	DocsRetrieved   int                   `json:"docs_retrieved"`
	AnswerLength    int                   `json:"answer_length"`
	// Completed is false when the answer never reached the caller in full, such
	// as a stream the client abandoned.
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

// Fallback reports whether the event took a fallback path.
func (e Event) Fallback() bool {
	return e.FallbackReason != domain.FallbackNone
}
