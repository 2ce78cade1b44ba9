package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"shopilots.com/chatbot/internal/analytics"
	"shopilots.com/chatbot/internal/core"
	"shopilots.com/chatbot/internal/domain"
)

const serviceName = "shopilots-chatbot"

// EventSource is the persisted analytics log used for exports.
type EventSource interface {
	RecentEvents(ctx context.Context, limit int) ([]analytics.Event, error)
}

type APIHandler struct {
	chatService *core.ChatService
	tracker     *analytics.Tracker
	events      EventSource
	logger      *slog.Logger
}

// NewAPIHandler builds the handler set. events may be nil, in which case
// exports read the in-memory window.
func NewAPIHandler(cs *core.ChatService, tracker *analytics.Tracker, events EventSource, logger *slog.Logger) *APIHandler {
	return &APIHandler{chatService: cs, tracker: tracker, events: events, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeQueryError maps query errors to responses. Internal details are logged,
// never returned.
func (h *APIHandler) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case r.Context().Err() != nil:
		h.logger.Info("client went away before the answer", "error", err)
	default:
		h.logger.Error("query failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "The assistant is temporarily unavailable. Please try again later."})
	}
}

func decodeRequest(r *http.Request) (core.Request, error) {
	var req core.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return req, nil
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	answer, err := h.chatService.Ask(r.Context(), req)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type tokenEvent struct {
	Token string `json:"token"`
}

func writeSSE(w io.Writer, event string, data any) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// ChatStreamHandler streams the answer as Server-Sent Events: one
// {"token":...} event per increment, then an "event: done" carrying the answer
// metadata and a final "data: [DONE]". A stream that ends without [DONE] was
// cut short.
func (h *APIHandler) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}

	stream, err := h.chatService.AskStream(r.Context(), req)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	defer stream.Close()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for {
		tok, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if r.Context().Err() != nil {
				h.logger.Info("client disconnected during stream", "model", stream.Model())
				return
			}
			h.logger.Warn("stream interrupted", "model", stream.Model(), "error", err)
			writeSSE(w, "error", errorResponse{Error: "The answer was interrupted. Please try again."})
			rc.Flush()
			return
		}
		if err := writeSSE(w, "", tokenEvent{Token: tok}); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}

	if err := writeSSE(w, "done", stream.Result()); err != nil {
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	rc.Flush()
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Index   string `json:"index"`
	Chunks  int    `json:"chunks"`
	Model   string `json:"embedding_model,omitempty"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.chatService.IndexStatus()
	resp := healthResponse{
		Status:  "ok",
		Service: serviceName,
		Index:   "degraded",
		Chunks:  status.Chunks,
		Model:   status.Manifest.EmbeddingModel,
	}
	if status.Ready {
		resp.Index = "ready"
	}
	writeJSON(w, http.StatusOK, resp)
}

// intParam reads a positive integer query parameter, clamped to ceiling.
func intParam(r *http.Request, name string, def, ceiling int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, ceiling)
}

func (h *APIHandler) KPIsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.KPIs())
}

func (h *APIHandler) TopQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.TopQuestions(intParam(r, "limit", 10, 100)))
}

func (h *APIHandler) HourlyStatsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.HourlyStats(intParam(r, "hours", 24, 24*7)))
}

func (h *APIHandler) ModelUsageHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.ModelUsage())
}

func (h *APIHandler) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Categories())
}

func (h *APIHandler) FallbackReasonsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.FallbackReasons())
}

func (h *APIHandler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	stats, ok := h.tracker.Session(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Events(intParam(r, "limit", 100, analytics.DefaultMaxEvents)))
}

// ExportHandler downloads the event log as json, csv or xlsx.
func (h *APIHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = analytics.FormatJSON
	}
	switch format {
	case analytics.FormatJSON, analytics.FormatCSV, analytics.FormatXLSX:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown export format %q", format)})
		return
	}

	limit := intParam(r, "limit", analytics.DefaultMaxEvents, 100000)
	var events []analytics.Event
	if h.events != nil {
		var err error
		events, err = h.events.RecentEvents(r.Context(), limit)
		if err != nil {
			h.logger.Error("failed to read analytics events", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read analytics events"})
			return
		}
	} else {
		events = h.tracker.Events(limit)
	}

	w.Header().Set("Content-Type", analytics.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="analytics_events.%s"`, format))
	if err := analytics.Export(w, events, format); err != nil {
		h.logger.Error("analytics export failed", "format", format, "error", err)
	}
}
