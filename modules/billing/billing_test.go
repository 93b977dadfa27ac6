package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/subscription-api/modules/billing"
	"github.com/dmitrymomot/subscription-api/pkg/jwt"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

const webhookSecret = "whsec_billing_test"

type fixture struct {
	server  *httptest.Server
	gateway *subscription.SandboxGateway
	store   *subscription.MemoryStore
	tokens  *jwt.Service
}

func newFixture(t *testing.T, opts ...subscription.EngineOption) *fixture {
	t.Helper()

	gw, err := subscription.NewSandboxGateway(subscription.SandboxConfig{
		WebhookSecret: webhookSecret,
		CheckoutURL:   "http://sandbox.local/checkout",
	})
	require.NoError(t, err)
	return newFixtureWith(t, gw, gw, opts...)
}

func newFixtureWith(t *testing.T, gw subscription.Gateway, sandbox *subscription.SandboxGateway, opts ...subscription.EngineOption) *fixture {
	t.Helper()

	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(subscription.DefaultPlans()...))
	require.NoError(t, err)

	store := subscription.NewMemoryStore()
	engine := subscription.NewEngine(store, gw, catalog, opts...)

	tokens, err := jwt.New("test-signing-key", time.Hour)
	require.NoError(t, err)

	module := billing.New(engine, gw, subscription.SandboxSignatureHeader, jwt.Middleware(tokens, nil))
	srv := httptest.NewServer(module.Handle())
	t.Cleanup(srv.Close)

	return &fixture{server: srv, gateway: sandbox, store: store, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path, userID string, body []byte, header http.Header) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	if userID != "" {
		token, err := f.tokens.Issue(userID, userID+"@example.com", "user")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestBilling_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/subscription", "u1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[*subscription.Subscription](t, resp))

	resp = f.do(t, http.MethodPost, "/subscription/checkout", "u1", []byte(`{"planId":"basic"}`), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	checkout := decode[map[string]string](t, resp)
	assert.Contains(t, checkout["url"], "http://sandbox.local/checkout/cs_sandbox_")

	current, err := f.store.FindLatestByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusPending, current.Status)

	payload, sig, err := f.gateway.Complete(current.ProviderSessionID)
	require.NoError(t, err)

	header := http.Header{subscription.SandboxSignatureHeader: []string{sig}}
	resp = f.do(t, http.MethodPost, "/subscription/webhook", "", payload, header)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"received": true}, decode[map[string]bool](t, resp))

	// Redelivery is acknowledged and changes nothing.
	resp = f.do(t, http.MethodPost, "/subscription/webhook", "", payload, header)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/subscription", "u1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	active := decode[subscription.Subscription](t, resp)
	assert.Equal(t, subscription.StatusActive, active.Status)
	assert.Equal(t, "basic", active.PlanID)
	assert.NotEmpty(t, active.ProviderSubscriptionID)

	resp = f.do(t, http.MethodGet, "/subscription/success?session_id="+current.ProviderSessionID, "", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, billing.SuccessMessage, string(text))

	resp = f.do(t, http.MethodPost, "/subscription/cancel", "u1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	canceled := decode[subscription.Subscription](t, resp)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)

	resp = f.do(t, http.MethodPost, "/subscription/cancel", "u1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	again := decode[subscription.Subscription](t, resp)
	assert.Equal(t, canceled.ID, again.ID)
	assert.Equal(t, subscription.StatusCanceled, again.Status)
}

func TestBilling_Auth(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/subscription"},
		{http.MethodPost, "/subscription/checkout"},
		{http.MethodPost, "/subscription/cancel"},
	} {
		resp := f.do(t, tc.method, tc.path, "", []byte(`{"planId":"basic"}`), nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.path)
	}
}

func TestBilling_Checkout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
		key    string
	}{
		{"unknown plan", `{"planId":"enterprise"}`, http.StatusBadRequest, "plan_not_found"},
		{"missing plan", `{}`, http.StatusBadRequest, "plan_required"},
		{"malformed body", `{"planId":`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := f.do(t, http.MethodPost, "/subscription/checkout", "u-"+tt.name, []byte(tt.body), nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.key, decode[map[string]string](t, resp)["error"])

			_, err := f.store.FindLatestByUser(context.Background(), "u-"+tt.name)
			assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
		})
	}
}

type failingGateway struct {
	*subscription.SandboxGateway
	err error
}

func (g failingGateway) CreateCheckoutSession(context.Context, subscription.CheckoutParams) (*subscription.CheckoutSession, error) {
	return nil, g.err
}

func TestBilling_GatewayErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		kind   subscription.GatewayErrorKind
		status int
	}{
		{"transient", subscription.GatewayTransient, http.StatusServiceUnavailable},
		{"rejected", subscription.GatewayRejected, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sandbox, err := subscription.NewSandboxGateway(subscription.SandboxConfig{WebhookSecret: webhookSecret})
			require.NoError(t, err)
			gw := failingGateway{
				SandboxGateway: sandbox,
				err:            &subscription.GatewayError{Kind: tt.kind, Op: "create_checkout_session", Err: errors.New("provider said no")},
			}
			f := newFixtureWith(t, gw, sandbox)

			resp := f.do(t, http.MethodPost, "/subscription/checkout", "u1", []byte(`{"planId":"basic"}`), nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotContains(t, decode[map[string]string](t, resp)["message"], "provider said no")
		})
	}
}

func TestBilling_Webhook(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	payload, err := subscription.SandboxEventPayload(subscription.SandboxEventCheckoutCompleted, "cs_unknown", "sub_1")
	require.NoError(t, err)
	sig, err := subscription.SignSandboxEvent(webhookSecret, payload, time.Now())
	require.NoError(t, err)

	t.Run("unknown session is acknowledged", func(t *testing.T) {
		t.Parallel()

		resp := f.do(t, http.MethodPost, "/subscription/webhook", "", payload, http.Header{subscription.SandboxSignatureHeader: []string{sig}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("tampered body", func(t *testing.T) {
		t.Parallel()

		tampered := bytes.Replace(payload, []byte("sub_1"), []byte("sub_9"), 1)
		resp := f.do(t, http.MethodPost, "/subscription/webhook", "", tampered, http.Header{subscription.SandboxSignatureHeader: []string{sig}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[map[string]string](t, resp)
		assert.Equal(t, "invalid_signature", body["error"])
		assert.True(t, strings.HasPrefix(body["message"], "Webhook Error: "))
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()

		resp := f.do(t, http.MethodPost, "/subscription/webhook", "", payload, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("oversized body", func(t *testing.T) {
		t.Parallel()

		big := bytes.Repeat([]byte("a"), billing.MaxWebhookBody+1)
		resp := f.do(t, http.MethodPost, "/subscription/webhook", "", big, http.Header{subscription.SandboxSignatureHeader: []string{sig}})
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

type brokenStore struct{ subscription.MemoryStore }

func (*brokenStore) FindBySessionID(context.Context, string) (*subscription.Subscription, error) {
	return nil, errors.New("database unavailable")
}

func TestBilling_WebhookStoreFailure(t *testing.T) {
	t.Parallel()

	gw, err := subscription.NewSandboxGateway(subscription.SandboxConfig{WebhookSecret: webhookSecret})
	require.NoError(t, err)
	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(subscription.DefaultPlans()...))
	require.NoError(t, err)

	engine := subscription.NewEngine(&brokenStore{}, gw, catalog)
	tokens, err := jwt.New("k", time.Hour)
	require.NoError(t, err)
	srv := httptest.NewServer(billing.New(engine, gw, subscription.SandboxSignatureHeader, jwt.Middleware(tokens, nil)).Handle())
	t.Cleanup(srv.Close)

	payload, err := subscription.SandboxEventPayload(subscription.SandboxEventCheckoutCompleted, "cs_1", "sub_1")
	require.NoError(t, err)
	sig, err := subscription.SignSandboxEvent(webhookSecret, payload, time.Now())
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/subscription/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set(subscription.SandboxSignatureHeader, sig)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestBilling_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/subscription/success", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "Invalid session ID", body["message"])
	assert.NotEmpty(t, body["error"])

	resp = f.do(t, http.MethodGet, "/subscription/success?sessionId=cs_bogus", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid session ID", decode[map[string]string](t, resp)["message"])
}

type lookupFailingGateway struct {
	*subscription.SandboxGateway
	err error
}

func (g lookupFailingGateway) LookupSession(context.Context, string) (*subscription.SessionInfo, error) {
	return nil, g.err
}

func TestBilling_SuccessGatewayErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    subscription.GatewayErrorKind
		status  int
		message string
	}{
		{"transient", subscription.GatewayTransient, http.StatusServiceUnavailable, "Payment provider is temporarily unavailable"},
		{"rejected", subscription.GatewayRejected, http.StatusBadRequest, "Invalid session ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sandbox, err := subscription.NewSandboxGateway(subscription.SandboxConfig{WebhookSecret: webhookSecret})
			require.NoError(t, err)
			gw := lookupFailingGateway{
				SandboxGateway: sandbox,
				err:            &subscription.GatewayError{Kind: tt.kind, Op: "lookup_session", Err: errors.New("lookup failed")},
			}
			f := newFixtureWith(t, gw, sandbox)

			resp := f.do(t, http.MethodGet, "/subscription/success?session_id=cs_1", "", nil, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.message, decode[map[string]string](t, resp)["message"])
		})
	}
}

func TestBilling_Plans(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/plans", "", nil, http.Header{"Accept-Language": []string{"en-US"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plans []struct {
		ID           string `json:"id"`
		DisplayPrice string `json:"displayPrice"`
		Price        struct {
			Amount int64 `json:"amount"`
		} `json:"price"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plans))
	require.Len(t, plans, 3)
	assert.Equal(t, "basic", plans[0].ID)
	assert.Equal(t, int64(500), plans[0].Price.Amount)
	assert.Equal(t, "$ 5.00", plans[0].DisplayPrice)
	assert.Equal(t, "premium", plans[2].ID)
}

func TestBilling_PlansLanguages(t *testing.T) {
	t.Parallel()

	gw, err := subscription.NewSandboxGateway(subscription.SandboxConfig{WebhookSecret: webhookSecret})
	require.NoError(t, err)
	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(subscription.DefaultPlans()...))
	require.NoError(t, err)
	tokens, err := jwt.New("test-signing-key", time.Hour)
	require.NoError(t, err)

	engine := subscription.NewEngine(subscription.NewMemoryStore(), gw, catalog)
	module := billing.New(engine, gw, subscription.SandboxSignatureHeader, jwt.Middleware(tokens, nil),
		billing.WithLanguages(language.AmericanEnglish, language.German),
	)
	srv := httptest.NewServer(module.Handle())
	t.Cleanup(srv.Close)

	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{"no header falls back to the first language", "", "$ 5.00"},
		{"english", "en-US,en;q=0.9", "$ 5.00"},
		{"german", "de", "$ 5,00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/plans", nil)
			require.NoError(t, err)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var plans []struct {
				DisplayPrice string `json:"displayPrice"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&plans))
			require.NotEmpty(t, plans)
			assert.Equal(t, tt.want, plans[0].DisplayPrice)
		})
	}
}
