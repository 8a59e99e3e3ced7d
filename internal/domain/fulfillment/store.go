package fulfillment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubmissionStore persists submission records.
type SubmissionStore interface {
	Create(ctx context.Context, rec *SubmissionRecord) error
	Update(ctx context.Context, rec *SubmissionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*SubmissionRecord, error)
	// Latest returns the newest non-superseded record for the session,
	// or nil when the session has never been routed.
	Latest(ctx context.Context, sessionID uuid.UUID) (*SubmissionRecord, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*SubmissionRecord, error)
}

// InMemorySubmissionStore keeps records in process memory. Suitable for
// tests and single-instance deployments.
type InMemorySubmissionStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*SubmissionRecord
	session map[uuid.UUID][]uuid.UUID
}

func NewInMemorySubmissionStore() *InMemorySubmissionStore {
	return &InMemorySubmissionStore{
		byID:    make(map[uuid.UUID]*SubmissionRecord),
		session: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *InMemorySubmissionStore) Create(_ context.Context, rec *SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.SubmissionID]; ok {
		return fmt.Errorf("submission %s already exists", rec.SubmissionID)
	}
	cp := *rec
	s.byID[rec.SubmissionID] = &cp
	s.session[rec.SessionID] = append(s.session[rec.SessionID], rec.SubmissionID)
	return nil
}

func (s *InMemorySubmissionStore) Update(_ context.Context, rec *SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.SubmissionID]; !ok {
		return fmt.Errorf("submission %s not found", rec.SubmissionID)
	}
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	s.byID[rec.SubmissionID] = &cp
	return nil
}

func (s *InMemorySubmissionStore) GetByID(_ context.Context, id uuid.UUID) (*SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("submission %s not found", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemorySubmissionStore) Latest(_ context.Context, sessionID uuid.UUID) (*SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.session[sessionID]
	for i := len(ids) - 1; i >= 0; i-- {
		rec := s.byID[ids[i]]
		if rec == nil || rec.Superseded {
			continue
		}
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemorySubmissionStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SubmissionRecord, 0, len(s.session[sessionID]))
	for _, id := range s.session[sessionID] {
		if rec := s.byID[id]; rec != nil {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
