// Package session keeps in-progress registrations keyed by user.
package session

import (
	"context"
	"sync"

	"sports-registration/internal/model"
)

// Store holds at most one Session per user.
type Store interface {
	Get(ctx context.Context, userID int64) (*model.Session, error)
	Put(ctx context.Context, s model.Session) error
	Delete(ctx context.Context, userID int64) error
	Count(ctx context.Context) (int64, error)
}

// MemoryStore is a process-local Store. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]model.Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]model.Session)}
}

// Get returns a copy of the user's session, or nil if there is none.
func (m *MemoryStore) Get(_ context.Context, userID int64) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	s = s.Clone()
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.sessions)), nil
}
