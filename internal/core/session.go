package core

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"shopilots.com/chatbot/internal/domain"
)

// DefaultSessionID groups requests that carry no session id.
const DefaultSessionID = "default"

const sessionIdleTTL = 30 * time.Minute

// SessionStore keeps the last few turns of each session in memory. Idle
// sessions expire.
type SessionStore struct {
	mu       sync.Mutex
	cache    *cache.Cache
	maxTurns int
}

func NewSessionStore(maxTurns int, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = sessionIdleTTL
	}
	return &SessionStore{
		cache:    cache.New(ttl, ttl/2),
		maxTurns: maxTurns,
	}
}

// History returns a copy of the session's turns, oldest first.
func (s *SessionStore) History(sessionID string) []domain.Turn {
	if s == nil || s.maxTurns <= 0 {
		return nil
	}
	v, ok := s.cache.Get(sessionID)
	if !ok {
		return nil
	}
	turns := v.([]domain.Turn)
	return append([]domain.Turn(nil), turns...)
}

// Append adds a turn and refreshes the session's expiry.
func (s *SessionStore) Append(sessionID string, turn domain.Turn) {
	if s == nil || s.maxTurns <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var turns []domain.Turn
	if v, ok := s.cache.Get(sessionID); ok {
		turns = v.([]domain.Turn)
	}
	turns = append(append([]domain.Turn(nil), turns...), turn)
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.cache.SetDefault(sessionID, turns)
}
