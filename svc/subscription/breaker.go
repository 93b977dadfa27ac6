package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/dmitrymomot/subscription-api/pkg/logger"
)

// BreakerConfig tunes BreakerGateway.
type BreakerConfig struct {
	MaxRequests         uint32        `env:"GATEWAY_BREAKER_MAX_REQUESTS" envDefault:"1"`
	Interval            time.Duration `env:"GATEWAY_BREAKER_INTERVAL" envDefault:"60s"`
	Timeout             time.Duration `env:"GATEWAY_BREAKER_TIMEOUT" envDefault:"30s"`
	ConsecutiveFailures uint32        `env:"GATEWAY_BREAKER_FAILURES" envDefault:"5"`
}

// BreakerGateway stops calling a failing provider for a while. Only
// transient errors count as failures; while open every remote call fails
// fast with a transient *GatewayError. Webhook verification is local and
// never goes through the breaker.
type BreakerGateway struct {
	next    Gateway
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerGateway wraps next.
func NewBreakerGateway(next Gateway, cfg BreakerConfig, log *slog.Logger) *BreakerGateway {
	if log == nil {
		log = logger.Discard()
	}
	threshold := max(cfg.ConsecutiveFailures, 1)

	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("payment gateway circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &BreakerGateway{next: next, breaker: gobreaker.NewCircuitBreaker[any](settings)}
}

func (b *BreakerGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.next.CreateCheckoutSession(ctx, p)
	})
	if err != nil {
		return nil, b.mapErr("create_checkout_session", err)
	}
	return res.(*CheckoutSession), nil
}

func (b *BreakerGateway) CancelRecurringBilling(ctx context.Context, providerSubscriptionID string) error {
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.next.CancelRecurringBilling(ctx, providerSubscriptionID)
	})
	return b.mapErr("cancel_recurring_billing", err)
}

func (b *BreakerGateway) LookupSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return b.next.LookupSession(ctx, sessionID)
	})
	if err != nil {
		return nil, b.mapErr("lookup_session", err)
	}
	return res.(*SessionInfo), nil
}

func (b *BreakerGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error) {
	return b.next.VerifyAndParseEvent(payload, signatureHeader)
}

// State reports the breaker state. It backs the gateway_breaker_state gauge.
func (b *BreakerGateway) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerGateway) mapErr(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return transientError(op, err)
	}
	return err
}
