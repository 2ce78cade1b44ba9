package analytics

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxEvents bounds the in-memory event window.
const DefaultMaxEvents = 10000

const hourLayout = "2006-01-02 15:00"

// KPIs are the headline chatbot metrics. Rates are percentages of questions.
type KPIs struct {
	TotalConversations         int     `json:"total_conversations"`
	TotalQuestions             int     `json:"total_questions"`
	TotalAnswers               int     `json:"total_answers"`
	CompletionRate             float64 `json:"completion_rate"`
	FallbackRate               float64 `json:"fallback_rate"`
	ErrorRate                  float64 `json:"error_rate"`
	AvgResponseTimeMS          float64 `json:"avg_response_time_ms"`
	AvgQuestionsPerSession     float64 `json:"avg_questions_per_session"`
	FirstContactResolutionRate float64 `json:"first_contact_resolution_rate"`
	TotalFallbacks             int     `json:"total_fallbacks"`
	TotalErrors                int     `json:"total_errors"`
}

// QuestionCount is one entry of the top questions list.
type QuestionCount struct {
	Question string `json:"question"`
	Count    int    `json:"count"`
}

// HourCount is the number of questions asked within one hour.
type HourCount struct {
	Hour          string `json:"hour"`
	QuestionCount int    `json:"question_count"`
}

// SessionStats summarises one session.
type SessionStats struct {
	SessionID           string    `json:"session_id"`
	StartTime           time.Time `json:"start_time"`
	LastActivity        time.Time `json:"last_activity"`
	QuestionCount       int       `json:"question_count"`
	AvgResponseTimeMS   float64   `json:"avg_response_time_ms"`
	TotalResponseTimeMS float64   `json:"total_response_time_ms"`
}

type sessionMeta struct {
	start, last  time.Time
	questions    int
	totalLatency float64
}

// Tracker aggregates events in memory. Counters cover every tracked event; the
// event list itself keeps only the newest maxEvents.
type Tracker struct {
	mu sync.RWMutex

	maxEvents int
	events    []Event // ring buffer
	next      int
	full      bool

	totalQuestions int
	totalAnswers   int
	totalFallbacks int
	totalErrors    int
	totalLatencyMS float64

	sessions        map[string]*sessionMeta
	questionsByHour map[string]int
	commonQuestions map[string]int
	fallbackReasons map[string]int
	modelUsage      map[string]int
	categories      map[string]int

	now func() time.Time
}

// NewTracker creates a tracker keeping up to maxEvents events.
func NewTracker(maxEvents int) *Tracker {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Tracker{
		maxEvents:       maxEvents,
		events:          make([]Event, 0, min(maxEvents, 1024)),
		sessions:        make(map[string]*sessionMeta),
		questionsByHour: make(map[string]int),
		commonQuestions: make(map[string]int),
		fallbackReasons: make(map[string]int),
		modelUsage:      make(map[string]int),
		categories:      make(map[string]int),
		now:             time.Now,
	}
}

// Track adds one event.
func (t *Tracker) Track(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.events) < t.maxEvents {
		t.events = append(t.events, ev)
	} else {
		t.events[t.next] = ev
		t.next = (t.next + 1) % t.maxEvents
		t.full = true
	}

	t.totalQuestions++
	t.questionsByHour[ev.Timestamp.Format(hourLayout)]++
	if q := normalizeQuestion(ev.Question); q != "" {
		t.commonQuestions[q]++
	}

	sm, ok := t.sessions[ev.SessionID]
	if !ok {
		sm = &sessionMeta{start: ev.Timestamp}
		t.sessions[ev.SessionID] = sm
	}
	sm.questions++
	sm.last = ev.Timestamp

	switch {
	case ev.Error != "":
		t.totalErrors++
	case ev.Completed:
		t.totalAnswers++
		t.totalLatencyMS += float64(ev.LatencyMS)
		sm.totalLatency += float64(ev.LatencyMS)
		if ev.ModelUsed != "" {
			t.modelUsage[ev.ModelUsed]++
		}
	}
	if ev.Fallback() {
		t.totalFallbacks++
		t.fallbackReasons[string(ev.FallbackReason)]++
	}
	if ev.MatchedCategory != "" {
		t.categories[ev.MatchedCategory]++
	}
}

func normalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	if r := []rune(q); len(r) > 100 {
		q = string(r[:100])
	}
	return q
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// KPIs returns the headline metrics.
func (t *Tracker) KPIs() KPIs {
	t.mu.RLock()
	defer t.mu.RUnlock()

	k := KPIs{
		TotalConversations: len(t.sessions),
		TotalQuestions:     t.totalQuestions,
		TotalAnswers:       t.totalAnswers,
		CompletionRate:     percent(t.totalAnswers, t.totalQuestions),
		FallbackRate:       percent(t.totalFallbacks, t.totalQuestions),
		ErrorRate:          percent(t.totalErrors, t.totalQuestions),
		TotalFallbacks:     t.totalFallbacks,
		TotalErrors:        t.totalErrors,
	}
	if t.totalAnswers > 0 {
		k.AvgResponseTimeMS = round2(t.totalLatencyMS / float64(t.totalAnswers))
	}
	if len(t.sessions) > 0 {
		k.AvgQuestionsPerSession = round2(float64(t.totalQuestions) / float64(len(t.sessions)))
		single := 0
		for _, sm := range t.sessions {
			if sm.questions == 1 {
				single++
			}
		}
		k.FirstContactResolutionRate = percent(single, len(t.sessions))
	}
	return k
}

// TopQuestions returns the most asked questions, most frequent first.
func (t *Tracker) TopQuestions(limit int) []QuestionCount {
	t.mu.RLock()
	out := make([]QuestionCount, 0, len(t.commonQuestions))
	for q, n := range t.commonQuestions {
		out = append(out, QuestionCount{Question: q, Count: n})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Question < out[j].Question
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// HourlyStats returns question counts for the last hours hours, oldest first.
func (t *Tracker) HourlyStats(hours int) []HourCount {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]HourCount, hours)
	for i := 0; i < hours; i++ {
		key := now.Add(-time.Duration(hours-1-i) * time.Hour).Format(hourLayout)
		out[i] = HourCount{Hour: key, QuestionCount: t.questionsByHour[key]}
	}
	return out
}

// ModelUsage counts completed answers per model.
func (t *Tracker) ModelUsage() map[string]int {
	return t.copyCounts(func() map[string]int { return t.modelUsage })
}

// Categories counts questions per matched product category.
func (t *Tracker) Categories() map[string]int {
	return t.copyCounts(func() map[string]int { return t.categories })
}

// FallbackReasons counts events per fallback reason.
func (t *Tracker) FallbackReasons() map[string]int {
	return t.copyCounts(func() map[string]int { return t.fallbackReasons })
}

func (t *Tracker) copyCounts(m func() map[string]int) map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	src := m()
	out := make(map[string]int, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Session returns the stats of one session.
func (t *Tracker) Session(id string) (SessionStats, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sm, ok := t.sessions[id]
	if !ok {
		return SessionStats{}, false
	}
	st := SessionStats{
		SessionID:           id,
		StartTime:           sm.start,
		LastActivity:        sm.last,
		QuestionCount:       sm.questions,
		TotalResponseTimeMS: round2(sm.totalLatency),
	}
	if sm.questions > 0 {
		st.AvgResponseTimeMS = round2(sm.totalLatency / float64(sm.questions))
	}
	return st, true
}

// Events returns up to limit of the newest events, oldest first. A limit of
// zero or less returns the whole window.
func (t *Tracker) Events(limit int) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ordered := make([]Event, 0, len(t.events))
	if t.full {
		ordered = append(ordered, t.events[t.next:]...)
		ordered = append(ordered, t.events[:t.next]...)
	} else {
		ordered = append(ordered, t.events...)
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}
