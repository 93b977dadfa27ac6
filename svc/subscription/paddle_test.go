package subscription_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

func TestNewPaddleGateway_Config(t *testing.T) {
	t.Parallel()

	_, err := subscription.NewPaddleGateway(subscription.PaddleConfig{WebhookSecret: "x"})
	assert.ErrorIs(t, err, subscription.ErrMissingAPIKey)

	_, err = subscription.NewPaddleGateway(subscription.PaddleConfig{APIKey: "k"})
	assert.ErrorIs(t, err, subscription.ErrMissingWebhookSecret)

	_, err = subscription.NewPaddleGateway(subscription.PaddleConfig{APIKey: "k", WebhookSecret: "x", Environment: "staging"})
	assert.Error(t, err)

	gw, err := subscription.NewPaddleGateway(subscription.PaddleConfig{APIKey: "k", WebhookSecret: "x", Environment: "sandbox"})
	require.NoError(t, err)
	assert.NotNil(t, gw)
}

func TestPaddleGateway_CheckoutRequiresPriceID(t *testing.T) {
	t.Parallel()

	gw, err := subscription.NewPaddleGateway(subscription.PaddleConfig{APIKey: "k", WebhookSecret: "x", Environment: "sandbox"})
	require.NoError(t, err)

	_, err = gw.CreateCheckoutSession(t.Context(), subscription.CheckoutParams{UserID: "u1", Plan: subscription.DefaultPlans()[0]})
	assert.ErrorIs(t, err, subscription.ErrMissingPriceID)
	assert.ErrorIs(t, err, subscription.ErrGateway)
}

func TestPaddleGateway_VerifyRejects(t *testing.T) {
	t.Parallel()

	gw, err := subscription.NewPaddleGateway(subscription.PaddleConfig{APIKey: "k", WebhookSecret: "pdl_ntfset_secret", Environment: "sandbox"})
	require.NoError(t, err)

	payload := []byte(`{"event_id":"evt_1","event_type":"transaction.completed","data":{"id":"txn_1","subscription_id":"sub_1"}}`)
	now := time.Now().Unix()

	tests := map[string]string{
		"missing header":    "",
		"missing timestamp": "h1=abcdef",
		"bad timestamp":     "ts=yesterday;h1=abcdef",
		"stale timestamp":   "ts=" + strconv.FormatInt(now-3600, 10) + ";h1=abcdef",
		"bad signature":     "ts=" + strconv.FormatInt(now, 10) + ";h1=abcdef",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := gw.VerifyAndParseEvent(payload, header)
			assert.ErrorIs(t, err, subscription.ErrInvalidSignature)
		})
	}
}

func TestClassifyPaddleError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		op   string
		err  error
		kind subscription.GatewayErrorKind
	}{
		{"transport", "cancel_recurring_billing", errors.New("connection reset"), subscription.GatewayTransient},
		{"already canceled", "cancel_recurring_billing", &paddleerr.Error{Code: "subscription_is_canceled_action_invalid", Type: "request_error"}, subscription.GatewayAlreadyCanceled},
		{"not found on cancel", "cancel_recurring_billing", &paddleerr.Error{Code: "not_found", Type: "request_error"}, subscription.GatewayAlreadyCanceled},
		{"not found on lookup", "lookup_session", &paddleerr.Error{Code: "not_found", Type: "request_error"}, subscription.GatewayRejected},
		{"api error", "create_checkout_session", &paddleerr.Error{Code: "internal_error", Type: "api_error"}, subscription.GatewayTransient},
		{"forbidden", "create_checkout_session", &paddleerr.Error{Code: "forbidden", Type: "request_error"}, subscription.GatewayRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gwErr *subscription.GatewayError
			require.ErrorAs(t, subscription.ClassifyPaddleError(tt.op, tt.err), &gwErr)
			assert.Equal(t, tt.kind, gwErr.Kind)
		})
	}
}
