package conversation

import (
	"context"
	"errors"
	"sync"
)

// ErrSessionNotFound is returned when a session id has no stored state.
var ErrSessionNotFound = errors.New("conversation: session not found")

// SessionStore persists conversation state between turns.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore is the default store: a mutex-guarded map. State does not
// survive restarts.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*ConversationState
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*ConversationState)}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (m *MemoryStore) Save(ctx context.Context, state *ConversationState) error {
	if state == nil || state.SessionID == "" {
		return errors.New("conversation: state with session id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[state.SessionID] = state
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
