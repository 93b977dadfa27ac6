package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

// DefaultLedgerPrefix namespaces processed event keys.
const DefaultLedgerPrefix = "subscription:webhook:event:"

// RedisLedger is a subscription.EventLedger that expires ids with Redis TTLs,
// so it is shared by every replica.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLedger returns a ledger keeping ids for ttl.
func NewRedisLedger(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = DefaultLedgerPrefix
	}
	if ttl <= 0 {
		ttl = subscription.DefaultLedgerTTL
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check event ledger: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Mark(ctx context.Context, eventID string) error {
	if err := l.client.Set(ctx, l.prefix+eventID, time.Now().Unix(), l.ttl).Err(); err != nil {
		return fmt.Errorf("write event ledger: %w", err)
	}
	return nil
}
