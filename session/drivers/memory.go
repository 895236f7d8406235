package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/drewburns/ai-phonecall/session"
)

// InMemoryStore implements session.Store using an in-memory map with optimistic locking.
// Values are copied in and out so callers never share memory with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	data      *session.CallSession
	expiresAt time.Time
}

// NewInMemoryStore creates a new in-memory session store.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &InMemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create implements session.Store.
func (s *InMemoryStore) Create(ctx context.Context, data *session.CallSession) error {
	if data.CallID == "" {
		return session.ErrEmptyCallID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	s.sessions[data.CallID] = memoryEntry{data: data.Clone(), expiresAt: now.Add(s.ttl)}
	return nil
}

// Load implements session.Store.
func (s *InMemoryStore) Load(ctx context.Context, callID string) (*session.CallSession, error) {
	if callID == "" {
		return nil, session.ErrEmptyCallID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(callID)
	if !ok {
		return session.New(callID), nil
	}
	// Refresh TTL on read
	entry.expiresAt = s.now().Add(s.ttl)
	s.sessions[callID] = entry
	return entry.data.Clone(), nil
}

// Save implements session.Store.
func (s *InMemoryStore) Save(ctx context.Context, data *session.CallSession) error {
	if data.CallID == "" {
		return session.ErrEmptyCallID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if entry, ok := s.live(data.CallID); ok {
		current = entry.data.Version
	}
	if current != data.Version {
		return session.ErrVersionConflict
	}

	now := s.now()
	if data.CreatedAt.IsZero() {
		data.CreatedAt = now
	}
	data.Version++
	data.UpdatedAt = now

	s.sessions[data.CallID] = memoryEntry{data: data.Clone(), expiresAt: now.Add(s.ttl)}
	return nil
}

// Clear implements session.Store.
func (s *InMemoryStore) Clear(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, callID)
	return nil
}

// Close implements session.Store.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]memoryEntry)
	return nil
}

// live returns the entry for callID unless it is missing or expired.
// Expired entries are dropped. Callers must hold s.mu.
func (s *InMemoryStore) live(callID string) (memoryEntry, bool) {
	entry, ok := s.sessions[callID]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, callID)
		return memoryEntry{}, false
	}
	return entry, true
}

var _ session.Store = (*InMemoryStore)(nil)
