package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/KamdynS/weather-agents/memory"
)

// Store keeps transcripts in process memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]memory.Turn
	now      func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]memory.Turn),
		now:      time.Now,
	}
}

// Append implements memory.SessionStore.
func (s *Store) Append(ctx context.Context, sessionID, role, text string) (memory.Turn, error) {
	if err := memory.ValidateAppend(sessionID, role); err != nil {
		return memory.Turn{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.sessions[sessionID]
	turn := memory.Turn{
		Role:      role,
		Text:      text,
		Sequence:  int64(len(turns)) + 1,
		CreatedAt: s.now().UTC(),
	}
	s.sessions[sessionID] = append(turns, turn)
	return turn, nil
}

// Turns implements memory.SessionStore.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]memory.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	out := make([]memory.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Reset implements memory.SessionStore.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Sessions returns the number of sessions with at least one turn.
func (s *Store) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var _ memory.SessionStore = (*Store)(nil)
