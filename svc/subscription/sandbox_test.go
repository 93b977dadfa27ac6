package subscription_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

const sandboxSecret = "whsec_test"

func newSandbox(t *testing.T) *subscription.SandboxGateway {
	t.Helper()
	gw, err := subscription.NewSandboxGateway(subscription.SandboxConfig{
		WebhookSecret: sandboxSecret,
		CheckoutURL:   "http://localhost:8080/sandbox/checkout",
	})
	require.NoError(t, err)
	return gw
}

func TestSandboxGateway_Checkout(t *testing.T) {
	t.Parallel()

	gw := newSandbox(t)
	plan := subscription.DefaultPlans()[0]

	sess, err := gw.CreateCheckoutSession(context.Background(), subscription.CheckoutParams{
		UserID:     "u1",
		Plan:       plan,
		SuccessURL: "http://app/success?session_id={CHECKOUT_SESSION_ID}",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sess.SessionID, "cs_sandbox_"))

	redirect, err := url.Parse(sess.RedirectURL)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(redirect.Path, "/"+sess.SessionID))
	assert.Equal(t, "basic", redirect.Query().Get("plan"))
	assert.Equal(t, "http://app/success?session_id="+sess.SessionID, redirect.Query().Get("success_url"))

	info, err := gw.LookupSession(context.Background(), sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "open", info.Status)

	_, err = gw.LookupSession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, subscription.ErrGateway)
}

func TestSandboxGateway_Cancel(t *testing.T) {
	t.Parallel()

	gw := newSandbox(t)
	require.NoError(t, gw.CancelRecurringBilling(context.Background(), "sub1"))
	assert.True(t, subscription.IsAlreadyCanceled(gw.CancelRecurringBilling(context.Background(), "sub1")))
}

func TestSandboxGateway_VerifyAndParseEvent(t *testing.T) {
	t.Parallel()

	gw := newSandbox(t)

	signed := func(t *testing.T, eventType string) ([]byte, string) {
		t.Helper()
		payload, err := subscription.SandboxEventPayload(eventType, "s1", "sub1")
		require.NoError(t, err)
		sig, err := subscription.SignSandboxEvent(sandboxSecret, payload, time.Now())
		require.NoError(t, err)
		return payload, sig
	}

	t.Run("checkout completed", func(t *testing.T) {
		t.Parallel()

		payload, sig := signed(t, subscription.SandboxEventCheckoutCompleted)
		ev, err := gw.VerifyAndParseEvent(payload, sig)
		require.NoError(t, err)

		completed, ok := ev.(subscription.CheckoutCompleted)
		require.True(t, ok)
		assert.Equal(t, "s1", completed.SessionID)
		assert.Equal(t, "sub1", completed.ProviderSubscriptionID)
		assert.NotEmpty(t, completed.EventID())
	})

	t.Run("variants", func(t *testing.T) {
		t.Parallel()

		payload, sig := signed(t, subscription.SandboxEventPaymentFailed)
		ev, err := gw.VerifyAndParseEvent(payload, sig)
		require.NoError(t, err)
		assert.IsType(t, subscription.PaymentFailed{}, ev)

		payload, sig = signed(t, subscription.SandboxEventSubscriptionDeleted)
		ev, err = gw.VerifyAndParseEvent(payload, sig)
		require.NoError(t, err)
		assert.IsType(t, subscription.SubscriptionDeleted{}, ev)

		payload, sig = signed(t, "customer.created")
		ev, err = gw.VerifyAndParseEvent(payload, sig)
		require.NoError(t, err)
		assert.IsType(t, subscription.Unhandled{}, ev)
	})

	t.Run("tampered body", func(t *testing.T) {
		t.Parallel()

		payload, sig := signed(t, subscription.SandboxEventCheckoutCompleted)
		tampered := []byte(strings.Replace(string(payload), `"sub1"`, `"sub2"`, 1))
		_, err := gw.VerifyAndParseEvent(tampered, sig)
		assert.ErrorIs(t, err, subscription.ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()

		payload, err := subscription.SandboxEventPayload(subscription.SandboxEventCheckoutCompleted, "s1", "sub1")
		require.NoError(t, err)
		sig, err := subscription.SignSandboxEvent("other", payload, time.Now())
		require.NoError(t, err)
		_, err = gw.VerifyAndParseEvent(payload, sig)
		assert.ErrorIs(t, err, subscription.ErrInvalidSignature)
	})

	t.Run("stale signature", func(t *testing.T) {
		t.Parallel()

		payload, err := subscription.SandboxEventPayload(subscription.SandboxEventCheckoutCompleted, "s1", "sub1")
		require.NoError(t, err)
		sig, err := subscription.SignSandboxEvent(sandboxSecret, payload, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		_, err = gw.VerifyAndParseEvent(payload, sig)
		assert.ErrorIs(t, err, subscription.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		t.Parallel()

		_, err := gw.VerifyAndParseEvent([]byte(`{}`), "")
		assert.ErrorIs(t, err, subscription.ErrInvalidSignature)
	})
}

func TestSandboxGateway_CompleteDrivesEngine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gw := newSandbox(t)
	store := subscription.NewMemoryStore()
	engine := newEngine(t, store, gw)

	res, err := engine.RequestCheckout(ctx, "u1", "premium")
	require.NoError(t, err)

	payload, sig, err := gw.Complete(res.Subscription.ProviderSessionID)
	require.NoError(t, err)

	ev, err := gw.VerifyAndParseEvent(payload, sig)
	require.NoError(t, err)
	require.NoError(t, engine.HandleEvent(ctx, ev))

	current, err := engine.GetCurrent(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, current.Status)

	info, err := engine.ConfirmCheckout(ctx, res.Subscription.ProviderSessionID)
	require.NoError(t, err)
	assert.Equal(t, "complete", info.Status)
	assert.Equal(t, current.ProviderSubscriptionID, info.ProviderSubscriptionID)

	canceled, err := engine.RequestCancel(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)

	_, _, err = gw.Complete("cs_unknown")
	assert.Error(t, err)

	_, err = subscription.NewSandboxGateway(subscription.SandboxConfig{})
	assert.ErrorIs(t, err, subscription.ErrMissingWebhookSecret)
}
