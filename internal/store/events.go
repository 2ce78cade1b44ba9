package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"shopilots.com/chatbot/internal/analytics"
	"shopilots.com/chatbot/internal/domain"
)

var _ analytics.Sink = (*SQLiteStore)(nil)

// SaveEvent appends one analytics event.
func (s *SQLiteStore) SaveEvent(ctx context.Context, ev analytics.Event) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO analytics_events
        (id, timestamp, session_id, question, matched_category, fallback_reason, model_used,
         latency_ms, docs_retrieved, answer_length, completed, error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.UTC(), ev.SessionID, ev.Question, ev.MatchedCategory, string(ev.FallbackReason),
		ev.ModelUsed, ev.LatencyMS, ev.DocsRetrieved, ev.AnswerLength, ev.Completed, ev.Error)
	if err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]analytics.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp, session_id, question, matched_category, fallback_reason,
        model_used, latency_ms, docs_retrieved, answer_length, completed, error
        FROM analytics_events ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics events: %w", err)
	}
	defer rows.Close()

	var events []analytics.Event
	for rows.Next() {
		var ev analytics.Event
		var category, reason, errText sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.SessionID, &ev.Question, &category, &reason,
			&ev.ModelUsed, &ev.LatencyMS, &ev.DocsRetrieved, &ev.AnswerLength, &ev.Completed, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		ev.MatchedCategory = category.String
		ev.FallbackReason = domain.FallbackReason(reason.String)
		ev.Error = errText.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analytics events: %w", err)
	}
	slices.Reverse(events)
	return events, nil
}

// CountEvents returns the number of stored events.
func (s *SQLiteStore) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analytics_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count analytics events: %w", err)
	}
	return n, nil
}
