package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/subscription-api/pkg/pg"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

const subscriptionColumns = `id, user_id, plan_id, status, provider_session_id,
	COALESCE(provider_subscription_id, ''), created_at, updated_at`

// PostgresStore is a subscription.Store backed by the subscriptions table
// created by the migrations package.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore returns a store using pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (s *PostgresStore) Insert(ctx context.Context, userID, planID, sessionID string) (*subscription.Subscription, error) {
	now := s.now()
	sub := &subscription.Subscription{
		ID:                uuid.NewString(),
		UserID:            userID,
		PlanID:            planID,
		Status:            subscription.StatusPending,
		ProviderSessionID: sessionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_id, status, provider_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), sub.ProviderSessionID, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, subscription.ErrDuplicateSession
		}
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) FindBySessionID(ctx context.Context, sessionID string) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_session_id = $1`,
		sessionID,
	)
	return scanSubscription(row)
}

func (s *PostgresStore) FindLatestByUser(ctx context.Context, userID string) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`,
		userID,
	)
	return scanSubscription(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, expected, next subscription.Status, providerSubscriptionID string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $3,
			provider_subscription_id = COALESCE(NULLIF($4, ''), provider_subscription_id),
			updated_at = $5
		WHERE id = $1 AND status = $2`,
		id, string(expected), string(next), providerSubscriptionID, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("update subscription status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var (
		sub    subscription.Subscription
		id     uuid.UUID
		status string
	)
	err := row.Scan(&id, &sub.UserID, &sub.PlanID, &status, &sub.ProviderSessionID,
		&sub.ProviderSubscriptionID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, subscription.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.ID = id.String()
	sub.Status = subscription.Status(status)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}
