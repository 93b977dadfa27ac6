package subscription

import (
	"context"
	"sync"
	"time"
)

// EventLedger remembers provider event ids that were fully processed so
// redeliveries can be acknowledged without re-running the engine. It is an
// optimization: the conditional store update keeps processing idempotent
// without it.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// DefaultLedgerTTL covers the redelivery window of the supported providers.
const DefaultLedgerTTL = 72 * time.Hour

// MemoryLedger is an EventLedger kept in process memory.
type MemoryLedger struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryLedger returns a ledger forgetting ids after ttl.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &MemoryLedger{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLedger) Seen(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	exp, ok := l.seen[eventID]
	if !ok {
		return false, nil
	}
	if !l.now().Before(exp) {
		delete(l.seen, eventID)
		return false, nil
	}
	return true, nil
}

func (l *MemoryLedger) Mark(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, exp := range l.seen {
		if !now.Before(exp) {
			delete(l.seen, id)
		}
	}
	l.seen[eventID] = now.Add(l.ttl)
	return nil
}

// WithClock overrides the time source.
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}
