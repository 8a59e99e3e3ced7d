package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when a session exists but its TTL has lapsed.
var ErrExpired = errors.New("session expired")

// Store persists sessions between requests. Sessions live only as long as
// the wizard run; the store enforces a TTL.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type memoryEntry struct {
	data     *persisted
	deadline time.Time
}

// InMemoryStore keeps sessions in process memory with a background sweep of
// expired entries. Suitable for tests and single-instance deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[uuid.UUID]memoryEntry
	stop     chan struct{}
	stopOnce sync.Once
}

func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	s := &InMemoryStore{
		ttl:      ttl,
		sessions: make(map[uuid.UUID]memoryEntry),
		stop:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *InMemoryStore) sweep() {
	interval := s.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, e := range s.sessions {
				if now.After(e.deadline) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the background sweeper.
func (s *InMemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *InMemoryStore) Save(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = memoryEntry{
		data:     sess.toPersisted(),
		deadline: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(e.deadline) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, ErrExpired
	}
	return e.data.toSession(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}
