package subscription_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, p subscription.CheckoutParams) (*subscription.CheckoutSession, error) {
	args := m.Called(ctx, p)
	sess, _ := args.Get(0).(*subscription.CheckoutSession)
	return sess, args.Error(1)
}

func (m *mockGateway) CancelRecurringBilling(ctx context.Context, providerSubscriptionID string) error {
	args := m.Called(ctx, providerSubscriptionID)
	return args.Error(0)
}

func (m *mockGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (subscription.Event, error) {
	args := m.Called(payload, signatureHeader)
	ev, _ := args.Get(0).(subscription.Event)
	return ev, args.Error(1)
}

func (m *mockGateway) LookupSession(ctx context.Context, sessionID string) (*subscription.SessionInfo, error) {
	args := m.Called(ctx, sessionID)
	info, _ := args.Get(0).(*subscription.SessionInfo)
	return info, args.Error(1)
}

type transitionKey struct {
	from, to subscription.Status
	outcome  subscription.Outcome
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions map[transitionKey]int
	events      map[subscription.Outcome]int
	calls       map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		transitions: make(map[transitionKey]int),
		events:      make(map[subscription.Outcome]int),
		calls:       make(map[string]int),
	}
}

func (o *recordingObserver) Transition(from, to subscription.Status, outcome subscription.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions[transitionKey{from, to, outcome}]++
}

func (o *recordingObserver) Event(_ string, outcome subscription.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events[outcome]++
}

func (o *recordingObserver) GatewayCall(op string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[op]++
}

func (o *recordingObserver) transitionCount(from, to subscription.Status, outcome subscription.Outcome) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transitions[transitionKey{from, to, outcome}]
}

func (o *recordingObserver) eventCount(outcome subscription.Outcome) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events[outcome]
}

func defaultCatalog(t *testing.T) *subscription.Catalog {
	t.Helper()
	c, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(subscription.DefaultPlans()...))
	require.NoError(t, err)
	return c
}

func alreadyCanceled() error {
	return &subscription.GatewayError{
		Kind: subscription.GatewayAlreadyCanceled,
		Op:   "cancel_recurring_billing",
		Err:  subscription.ErrAlreadyCanceled,
	}
}

// activeRecord inserts a record and activates it directly through the store.
func activeRecord(t *testing.T, store subscription.Store, userID, sessionID, providerSubID string) *subscription.Subscription {
	t.Helper()
	ctx := context.Background()

	sub, err := store.Insert(ctx, userID, "basic", sessionID)
	require.NoError(t, err)
	ok, err := store.UpdateStatus(ctx, sub.ID, subscription.StatusPending, subscription.StatusActive, providerSubID)
	require.NoError(t, err)
	require.True(t, ok)

	sub, err = store.FindBySessionID(ctx, sessionID)
	require.NoError(t, err)
	return sub
}
