package session

import (
	"context"
	"sync"
)

// Backend persists sessions. Implementations must be safe for concurrent use and must
// not retain the pointers they are given or hand out pointers they keep.
type Backend interface {
	Get(ctx context.Context, phone string) (*Session, bool, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, phone string) error
	List(ctx context.Context) ([]*Session, error)
}

// Locker is implemented by backends shared between processes. Lock holds phone across
// every replica until the returned unlock runs.
type Locker interface {
	Lock(ctx context.Context, phone string) (unlock func(), err error)
}

// MemoryBackend is the default process-local backend.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]*Session)}
}

func (m *MemoryBackend) Get(_ context.Context, phone string) (*Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[phone]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	m.sessions[s.PhoneNumber] = s.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, phone string) error {
	m.mu.Lock()
	delete(m.sessions, phone)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) List(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}
