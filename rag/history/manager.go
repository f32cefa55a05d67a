package history

import (
	"context"
	"errors"
	"sync"

	"github.com/contextforge/contextforge/rag/interfaces"
	"github.com/contextforge/contextforge/rag/types"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for operations on unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the explicit session handle the engine receives instead
// of owning conversation state itself. Two implementations: the in-memory
// Manager and the pgx-backed PostgresHistory.
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	Drop(ctx context.Context, sessionID string) error
	AddTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error
	Recent(ctx context.Context, sessionID string, n int) ([]types.ConversationTurn, error)
	Stats(ctx context.Context, sessionID string) (Stats, error)
	Clear(ctx context.Context, sessionID string) error
	Export(ctx context.Context, sessionID string) ([]byte, error)
}

// Manager keeps one in-memory Store per session. Per-session isolation
// means only the per-store mutex is needed for turn updates.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Store
	maxTurns int
	counter  interfaces.TokenCounter
}

func NewManager(maxTurns int, counter interfaces.TokenCounter) *Manager {
	return &Manager{
		sessions: map[string]*Store{},
		maxTurns: maxTurns,
		counter:  counter,
	}
}

func (m *Manager) Create(_ context.Context) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = NewStore(m.maxTurns, m.counter)
	m.mu.Unlock()
	return id, nil
}

func (m *Manager) Drop(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *Manager) get(sessionID string) (*Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return store, nil
}

func (m *Manager) AddTurn(_ context.Context, sessionID string, turn types.ConversationTurn) error {
	store, err := m.get(sessionID)
	if err != nil {
		return err
	}
	store.AddTurn(turn.UserQuery, turn.AIResponse, turn.RetrievedDocuments, turn.Metadata)
	return nil
}

func (m *Manager) Recent(_ context.Context, sessionID string, n int) ([]types.ConversationTurn, error) {
	store, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	return store.Recent(n), nil
}

func (m *Manager) Stats(_ context.Context, sessionID string) (Stats, error) {
	store, err := m.get(sessionID)
	if err != nil {
		return Stats{}, err
	}
	return store.Stats(), nil
}

func (m *Manager) Clear(_ context.Context, sessionID string) error {
	store, err := m.get(sessionID)
	if err != nil {
		return err
	}
	store.Clear()
	return nil
}

func (m *Manager) Export(_ context.Context, sessionID string) ([]byte, error) {
	store, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	return store.Export()
}
