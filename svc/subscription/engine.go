package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/subscription-api/pkg/logger"
)

// Engine drives subscription records through their lifecycle. It holds no
// locks: every status change goes through Store.UpdateStatus guarded by the
// status it was read with, so whichever concurrent transition loses simply
// observes a stale status and does nothing.
type Engine struct {
	store      Store
	gateway    Gateway
	catalog    *Catalog
	ledger     EventLedger
	observer   Observer
	log        *slog.Logger
	successURL string
	cancelURL  string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithEventLedger enables skipping already processed provider events.
func WithEventLedger(l EventLedger) EngineOption {
	return func(e *Engine) { e.ledger = l }
}

// WithRedirectURLs sets where the provider sends the user after checkout.
// successURL may contain a provider placeholder such as {CHECKOUT_SESSION_ID}.
func WithRedirectURLs(successURL, cancelURL string) EngineOption {
	return func(e *Engine) {
		e.successURL = successURL
		e.cancelURL = cancelURL
	}
}

// NewEngine wires an engine.
func NewEngine(store Store, gateway Gateway, catalog *Catalog, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		gateway:  gateway,
		catalog:  catalog,
		observer: noopObserver{},
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With(logger.Component("subscription.engine"))
	return e
}

// CheckoutResult is returned by RequestCheckout.
type CheckoutResult struct {
	RedirectURL  string
	Subscription *Subscription
}

// RequestCheckout opens a provider checkout for the plan and records a new
// pending subscription. Every call creates a new record.
func (e *Engine) RequestCheckout(ctx context.Context, userID, planID string) (*CheckoutResult, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	plan, err := e.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}

	// The remote session exists once the call returns; record it even if
	// the client has gone away.
	ctx = context.WithoutCancel(ctx)

	sess, err := e.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		UserID:     userID,
		Plan:       plan,
		SuccessURL: e.successURL,
		CancelURL:  e.cancelURL,
	})
	e.observer.GatewayCall("create_checkout_session", err)
	if err != nil {
		e.log.ErrorContext(ctx, "create checkout session failed", logger.UserID(userID), logger.Error(err))
		return nil, err
	}

	sub, err := e.store.Insert(ctx, userID, plan.ID, sess.SessionID)
	if err != nil {
		e.log.ErrorContext(ctx, "store checkout session failed",
			logger.UserID(userID), logger.SessionID(sess.SessionID), logger.Error(err))
		return nil, err
	}

	e.observer.Transition("", StatusPending, OutcomeApplied)
	e.log.InfoContext(ctx, "checkout requested",
		logger.UserID(userID),
		logger.SubscriptionID(sub.ID),
		logger.SessionID(sub.ProviderSessionID),
		slog.String("plan_id", plan.ID),
	)

	return &CheckoutResult{RedirectURL: sess.RedirectURL, Subscription: sub}, nil
}

// ApplyCheckoutCompleted activates the record created for sessionID.
// Unknown sessions, records that are no longer pending and lost races all
// return nil without writing.
func (e *Engine) ApplyCheckoutCompleted(ctx context.Context, sessionID, providerSubscriptionID string) error {
	log := e.log.With(logger.SessionID(sessionID))

	sub, err := e.store.FindBySessionID(ctx, sessionID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		e.observer.Transition(StatusPending, StatusActive, OutcomeUnknownSession)
		log.InfoContext(ctx, "checkout completed for unknown session")
		return nil
	}
	if err != nil {
		return err
	}
	log = log.With(logger.SubscriptionID(sub.ID), logger.UserID(sub.UserID))

	next, err := lifecycle.Next(sub.Status, triggerActivate)
	if err != nil {
		e.observer.Transition(sub.Status, StatusActive, OutcomeSkipped)
		log.DebugContext(ctx, "checkout completed ignored", slog.String("status", string(sub.Status)))
		return nil
	}
	if providerSubscriptionID == "" {
		e.observer.Transition(sub.Status, next, OutcomeSkipped)
		log.WarnContext(ctx, "checkout completed without recurring billing id")
		return nil
	}

	ok, err := e.store.UpdateStatus(ctx, sub.ID, sub.Status, next, providerSubscriptionID)
	if err != nil {
		e.observer.Transition(sub.Status, next, OutcomeFailed)
		return err
	}
	if !ok {
		e.observer.Transition(sub.Status, next, OutcomeConflict)
		log.InfoContext(ctx, "activation lost to a concurrent update")
		return nil
	}

	e.observer.Transition(sub.Status, next, OutcomeApplied)
	log.InfoContext(ctx, "subscription activated",
		logger.Transition(string(sub.Status), string(next)),
		logger.ProviderSubscriptionID(providerSubscriptionID),
	)
	return nil
}

// RequestCancel cancels the user's current subscription. It returns
// (nil, nil) when there is nothing to cancel: no record, or a record that
// never reached recurring billing. Remote billing is stopped first; a
// genuine gateway error leaves local state untouched.
func (e *Engine) RequestCancel(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	sub, err := e.store.FindLatestByUser(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sub.ProviderSubscriptionID == "" {
		e.observer.Transition(sub.Status, StatusCanceled, OutcomeSkipped)
		e.log.InfoContext(ctx, "nothing to cancel", logger.UserID(userID), logger.SubscriptionID(sub.ID))
		return nil, nil
	}

	log := e.log.With(
		logger.UserID(userID),
		logger.SubscriptionID(sub.ID),
		logger.ProviderSubscriptionID(sub.ProviderSubscriptionID),
	)
	ctx = context.WithoutCancel(ctx)

	err = e.gateway.CancelRecurringBilling(ctx, sub.ProviderSubscriptionID)
	e.observer.GatewayCall("cancel_recurring_billing", err)
	switch {
	case err == nil:
	case IsAlreadyCanceled(err):
		log.InfoContext(ctx, "recurring billing already canceled at provider")
	default:
		log.ErrorContext(ctx, "cancel recurring billing failed", logger.Error(err))
		return nil, err
	}

	if sub.IsCanceled() {
		e.observer.Transition(sub.Status, StatusCanceled, OutcomeSkipped)
		return sub, nil
	}

	next, err := lifecycle.Next(sub.Status, triggerCancel)
	if err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", sub.ID, err)
	}

	ok, err := e.store.UpdateStatus(ctx, sub.ID, sub.Status, next, "")
	if err != nil {
		e.observer.Transition(sub.Status, next, OutcomeFailed)
		return nil, err
	}
	if ok {
		e.observer.Transition(sub.Status, next, OutcomeApplied)
		log.InfoContext(ctx, "subscription canceled", logger.Transition(string(sub.Status), string(next)))
	} else {
		e.observer.Transition(sub.Status, next, OutcomeConflict)
		log.InfoContext(ctx, "cancel lost to a concurrent update")
	}

	return e.store.FindBySessionID(ctx, sub.ProviderSessionID)
}

// GetCurrent returns the user's most recently created record, or (nil, nil).
func (e *Engine) GetCurrent(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	sub, err := e.store.FindLatestByUser(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	return sub, err
}

// HandleEvent applies a verified provider event. Events already recorded in
// the ledger are acknowledged without processing.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) error {
	log := e.log.With(logger.EventID(ev.EventID()), logger.EventType(ev.EventType()))

	if e.ledger != nil && ev.EventID() != "" {
		seen, err := e.ledger.Seen(ctx, ev.EventID())
		if err != nil {
			log.WarnContext(ctx, "event ledger lookup failed", logger.Error(err))
		} else if seen {
			e.observer.Event(ev.EventType(), OutcomeDuplicate)
			log.DebugContext(ctx, "event already processed")
			return nil
		}
	}

	var err error
	outcome := OutcomeApplied
	switch ev := ev.(type) {
	case CheckoutCompleted:
		err = e.ApplyCheckoutCompleted(ctx, ev.SessionID, ev.ProviderSubscriptionID)
	case PaymentFailed:
		outcome = OutcomeIgnored
		log.WarnContext(ctx, "payment failed for subscription", logger.ProviderSubscriptionID(ev.ProviderSubscriptionID))
	case SubscriptionDeleted:
		outcome = OutcomeIgnored
		log.InfoContext(ctx, "subscription deleted at provider", logger.ProviderSubscriptionID(ev.ProviderSubscriptionID))
	default:
		outcome = OutcomeIgnored
		log.DebugContext(ctx, "unhandled event")
	}
	if err != nil {
		e.observer.Event(ev.EventType(), OutcomeFailed)
		return err
	}
	e.observer.Event(ev.EventType(), outcome)

	if e.ledger != nil && ev.EventID() != "" {
		if err := e.ledger.Mark(ctx, ev.EventID()); err != nil {
			log.WarnContext(ctx, "event ledger write failed", logger.Error(err))
		}
	}
	return nil
}

// ConfirmCheckout looks up a checkout session for the success page. It never
// changes stored state.
func (e *Engine) ConfirmCheckout(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	info, err := e.gateway.LookupSession(ctx, sessionID)
	e.observer.GatewayCall("lookup_session", err)
	return info, err
}

// Plans returns the catalog in display order.
func (e *Engine) Plans() []Plan {
	return e.catalog.List()
}
