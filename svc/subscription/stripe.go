package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig configures StripeGateway.
type StripeConfig struct {
	SecretKey        string        `env:"STRIPE_SECRET_KEY"`
	WebhookSecret    string        `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
	// APIBaseURL overrides the Stripe API endpoint, e.g. for stripe-mock.
	APIBaseURL string `env:"STRIPE_API_BASE_URL"`
}

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// StripeGateway is a Gateway backed by Stripe Checkout and Billing.
type StripeGateway struct {
	api       *client.API
	secret    string
	tolerance time.Duration
}

// NewStripeGateway builds a gateway with its own API client; the global
// stripe.Key is never touched.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}

	var backends *stripe.Backends
	if cfg.APIBaseURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIBaseURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	return &StripeGateway{api: api, secret: cfg.WebhookSecret, tolerance: cfg.WebhookTolerance}, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.Plan.Price.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Plan.Name),
					},
					UnitAmount: stripe.Int64(p.Plan.Price.Amount),
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(p.UserID),
	}
	if p.SuccessURL != "" {
		params.SuccessURL = stripe.String(p.SuccessURL)
	}
	if p.CancelURL != "" {
		params.CancelURL = stripe.String(p.CancelURL)
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classifyStripeError("create_checkout_session", err)
	}
	if sess.URL == "" {
		return nil, rejectedError("create_checkout_session", ErrNoCheckoutURL)
	}

	out := &CheckoutSession{SessionID: sess.ID, RedirectURL: sess.URL}
	if sess.Subscription != nil {
		out.ProviderSubscriptionID = sess.Subscription.ID
	}
	return out, nil
}

func (g *StripeGateway) CancelRecurringBilling(ctx context.Context, providerSubscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	if _, err := g.api.Subscriptions.Cancel(providerSubscriptionID, params); err != nil {
		return classifyStripeError("cancel_recurring_billing", err)
	}
	return nil
}

func (g *StripeGateway) LookupSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, classifyStripeError("lookup_session", err)
	}

	info := &SessionInfo{
		SessionID:     sess.ID,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
	}
	if sess.Subscription != nil {
		info.ProviderSubscriptionID = sess.Subscription.ID
	}
	return info, nil
}

// stripeInvoice decodes the subscription reference of an invoice for both
// the legacy top-level field and the newer parent details.
type stripeInvoice struct {
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (g *StripeGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, StripeSignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.secret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event has no data", ErrInvalidSignature)
	}

	meta := EventMeta{ID: event.ID, Type: string(event.Type)}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, errors.Join(ErrInvalidSignature, err)
		}
		ev := CheckoutCompleted{EventMeta: meta, SessionID: sess.ID}
		if sess.Subscription != nil {
			ev.ProviderSubscriptionID = sess.Subscription.ID
		}
		return ev, nil

	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripeInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrInvalidSignature, err)
		}
		subID := inv.Subscription
		if subID == "" {
			subID = inv.Parent.SubscriptionDetails.Subscription
		}
		return PaymentFailed{EventMeta: meta, ProviderSubscriptionID: subID}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrInvalidSignature, err)
		}
		return SubscriptionDeleted{EventMeta: meta, ProviderSubscriptionID: sub.ID}, nil
	}

	return Unhandled{EventMeta: meta}, nil
}

// classifyStripeError maps Stripe failures onto gateway error kinds:
// missing resources mean the billing is gone, 429 and 5xx are transient,
// other API errors are rejections and anything else is a transport failure.
func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return transientError(op, err)
	}

	switch {
	case stripeErr.Code == stripe.ErrorCodeResourceMissing,
		stripeErr.HTTPStatusCode == http.StatusNotFound:
		if op == "cancel_recurring_billing" {
			return alreadyCanceledError(op, err)
		}
		return rejectedError(op, err)
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
		stripeErr.HTTPStatusCode == 0:
		return transientError(op, err)
	}
	return rejectedError(op, err)
}
