package session

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/finance-insights/internal/domain"
)

type memorySession struct {
	turns   []domain.ConversationTurn
	touched time.Time
}

// MemoryStore keeps session history in process memory. Sessions idle for
// longer than the TTL are dropped on access.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	window   int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore. A ttl of zero keeps sessions forever.
func NewMemoryStore(window int, ttl time.Duration) *MemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		window:   window,
		ttl:      ttl,
		now:      time.Now,
	}
}

// AppendTurn adds turn to the end of the session, evicting the oldest turns
// beyond the window.
func (m *MemoryStore) AppendTurn(ctx context.Context, sessionID string, turn domain.ConversationTurn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := m.now()
	turn, err := prepare(sessionID, turn, now)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(sessionID, now)
	if s == nil {
		s = &memorySession{}
		m.sessions[sessionID] = s
	}
	s.turns = append(s.turns, turn)
	if over := len(s.turns) - m.window; over > 0 {
		s.turns = append([]domain.ConversationTurn(nil), s.turns[over:]...)
	}
	s.touched = now
	return nil
}

// RecentHistory returns a copy of the session's turns, oldest first.
func (m *MemoryStore) RecentHistory(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(sessionID, m.now())
	if s == nil {
		return []domain.ConversationTurn{}, nil
	}
	out := make([]domain.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

// live returns the session if it exists and has not expired. Callers hold mu.
func (m *MemoryStore) live(sessionID string, now time.Time) *memorySession {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	if m.ttl > 0 && now.Sub(s.touched) > m.ttl {
		delete(m.sessions, sessionID)
		return nil
	}
	return s
}
