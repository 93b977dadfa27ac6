package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	records   []*Subscription
	bySession map[string]int
	now       func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySession: make(map[string]int),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Insert(_ context.Context, userID, planID, sessionID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySession[sessionID]; ok {
		return nil, ErrDuplicateSession
	}

	now := s.now()
	rec := &Subscription{
		ID:                uuid.NewString(),
		UserID:            userID,
		PlanID:            planID,
		Status:            StatusPending,
		ProviderSessionID: sessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.records = append(s.records, rec)
	s.bySession[sessionID] = len(s.records) - 1

	out := *rec
	return &out, nil
}

func (s *MemoryStore) FindBySessionID(_ context.Context, sessionID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.bySession[sessionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	out := *s.records[idx]
	return &out, nil
}

// FindLatestByUser scans newest first; equal CreatedAt values resolve to
// the later insert.
func (s *MemoryStore) FindLatestByUser(_ context.Context, userID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Subscription
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.UserID != userID {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	out := *latest
	return &out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, expected, next Status, providerSubscriptionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID != id {
			continue
		}
		if rec.Status != expected {
			return false, nil
		}
		rec.Status = next
		if providerSubscriptionID != "" {
			rec.ProviderSubscriptionID = providerSubscriptionID
		}
		rec.UpdatedAt = s.now()
		return true, nil
	}
	return false, nil
}
