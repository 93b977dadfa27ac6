package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subscription-api/pkg/webhook"
)

// SandboxConfig configures SandboxGateway.
type SandboxConfig struct {
	WebhookSecret    string        `env:"SANDBOX_WEBHOOK_SECRET" envDefault:"whsec_sandbox"`
	WebhookTolerance time.Duration `env:"SANDBOX_WEBHOOK_TOLERANCE" envDefault:"5m"`
	CheckoutURL      string        `env:"SANDBOX_CHECKOUT_URL" envDefault:"http://localhost:8080/sandbox/checkout"`
}

// SandboxSignatureHeader carries the webhook signature.
const SandboxSignatureHeader = "X-Sandbox-Signature"

// Sandbox event types mirror the provider names they stand in for.
const (
	SandboxEventCheckoutCompleted   = "checkout.session.completed"
	SandboxEventPaymentFailed       = "invoice.payment_failed"
	SandboxEventSubscriptionDeleted = "customer.subscription.deleted"
)

// SandboxGateway is an offline Gateway for local development and tests.
// Webhooks are signed with the pkg/webhook scheme, see SignSandboxEvent.
type SandboxGateway struct {
	cfg SandboxConfig

	mu       sync.Mutex
	sessions map[string]*SessionInfo
	canceled map[string]bool
}

// NewSandboxGateway returns a gateway with no sessions.
func NewSandboxGateway(cfg SandboxConfig) (*SandboxGateway, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	return &SandboxGateway{
		cfg:      cfg,
		sessions: make(map[string]*SessionInfo),
		canceled: make(map[string]bool),
	}, nil
}

func (g *SandboxGateway) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*CheckoutSession, error) {
	id := "cs_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	redirect, err := url.Parse(g.cfg.CheckoutURL)
	if err != nil {
		return nil, rejectedError("create_checkout_session", err)
	}
	redirect = redirect.JoinPath(id)
	q := redirect.Query()
	q.Set("plan", p.Plan.ID)
	if p.SuccessURL != "" {
		q.Set("success_url", strings.ReplaceAll(p.SuccessURL, "{CHECKOUT_SESSION_ID}", id))
	}
	redirect.RawQuery = q.Encode()

	g.mu.Lock()
	g.sessions[id] = &SessionInfo{SessionID: id, Status: "open", PaymentStatus: "unpaid"}
	g.mu.Unlock()

	return &CheckoutSession{SessionID: id, RedirectURL: redirect.String()}, nil
}

func (g *SandboxGateway) CancelRecurringBilling(_ context.Context, providerSubscriptionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.canceled[providerSubscriptionID] {
		return alreadyCanceledError("cancel_recurring_billing", nil)
	}
	g.canceled[providerSubscriptionID] = true
	return nil
}

func (g *SandboxGateway) LookupSession(_ context.Context, sessionID string) (*SessionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	info, ok := g.sessions[sessionID]
	if !ok {
		return nil, rejectedError("lookup_session", fmt.Errorf("no such checkout session: %s", sessionID))
	}
	out := *info
	return &out, nil
}

// Complete marks a session as paid, as the hosted checkout page would, and
// returns the signed webhook that the provider would deliver.
func (g *SandboxGateway) Complete(sessionID string) (payload []byte, signature string, err error) {
	subID := "sub_sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	g.mu.Lock()
	info, ok := g.sessions[sessionID]
	if ok {
		info.Status = "complete"
		info.PaymentStatus = "paid"
		info.ProviderSubscriptionID = subID
	}
	g.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("no such checkout session: %s", sessionID)
	}

	payload, err = SandboxEventPayload(SandboxEventCheckoutCompleted, sessionID, subID)
	if err != nil {
		return nil, "", err
	}
	signature, err = webhook.Sign(g.cfg.WebhookSecret, payload, time.Now())
	return payload, signature, err
}

type sandboxEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		SessionID      string `json:"session_id,omitempty"`
		SubscriptionID string `json:"subscription_id,omitempty"`
	} `json:"data"`
}

// SandboxEventPayload builds a sandbox webhook body with a fresh event id.
func SandboxEventPayload(eventType, sessionID, subscriptionID string) ([]byte, error) {
	ev := sandboxEvent{ID: "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""), Type: eventType}
	ev.Data.SessionID = sessionID
	ev.Data.SubscriptionID = subscriptionID
	return json.Marshal(ev)
}

// SignSandboxEvent returns the X-Sandbox-Signature value for payload.
func SignSandboxEvent(secret string, payload []byte, at time.Time) (string, error) {
	return webhook.Sign(secret, payload, at)
}

func (g *SandboxGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, SandboxSignatureHeader)
	}
	if err := webhook.Verify(g.cfg.WebhookSecret, payload, signatureHeader, g.cfg.WebhookTolerance); err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	var ev sandboxEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	meta := EventMeta{ID: ev.ID, Type: ev.Type}

	switch ev.Type {
	case SandboxEventCheckoutCompleted:
		return CheckoutCompleted{EventMeta: meta, SessionID: ev.Data.SessionID, ProviderSubscriptionID: ev.Data.SubscriptionID}, nil
	case SandboxEventPaymentFailed:
		return PaymentFailed{EventMeta: meta, ProviderSubscriptionID: ev.Data.SubscriptionID}, nil
	case SandboxEventSubscriptionDeleted:
		return SubscriptionDeleted{EventMeta: meta, ProviderSubscriptionID: ev.Data.SubscriptionID}, nil
	}
	return Unhandled{EventMeta: meta}, nil
}
