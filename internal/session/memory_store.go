package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It is the default backend
// for single-instance deployments; sessions are lost on restart, which only
// costs the browser its remembered coder selection.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

type memoryItem struct {
	data      Data
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory session store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Save stores the session, resetting its expiration
func (s *MemoryStore) Save(ctx context.Context, sessionID string, data Data) error {
	if data.CreatedAt.IsZero() {
		data.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.items[sessionID] = memoryItem{
		data:      data,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// Lookup retrieves a session by ID
func (s *MemoryStore) Lookup(ctx context.Context, sessionID string) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[sessionID]
	if !ok {
		return Data{}, ErrNotFound
	}
	if s.now().After(item.expiresAt) {
		delete(s.items, sessionID)
		return Data{}, ErrNotFound
	}
	return item.data, nil
}

// Delete removes a session
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	return nil
}

// sweep drops expired sessions. Called with the lock held.
func (s *MemoryStore) sweep() {
	now := s.now()
	for id, item := range s.items {
		if now.After(item.expiresAt) {
			delete(s.items, id)
		}
	}
}

// Close is a no-op for the memory backend
func (s *MemoryStore) Close() error {
	return nil
}

// Ping always succeeds for the memory backend
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
