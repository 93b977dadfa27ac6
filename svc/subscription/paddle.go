package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
)

// PaddleConfig configures PaddleGateway.
type PaddleConfig struct {
	APIKey           string        `env:"PADDLE_API_KEY"`
	WebhookSecret    string        `env:"PADDLE_WEBHOOK_SECRET"`
	Environment      string        `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	WebhookTolerance time.Duration `env:"PADDLE_WEBHOOK_TOLERANCE" envDefault:"5m"`
}

// PaddleSignatureHeader carries the webhook signature.
const PaddleSignatureHeader = "Paddle-Signature"

// PaddleGateway is a Gateway backed by Paddle Billing. Checkout sessions are
// Paddle transactions; plans must carry a catalog price id.
type PaddleGateway struct {
	client    *paddle.SDK
	verifier  *paddle.WebhookVerifier
	tolerance time.Duration
	now       func() time.Time
}

// NewPaddleGateway builds a gateway for the configured environment.
func NewPaddleGateway(cfg PaddleConfig, opts ...paddle.Option) (*PaddleGateway, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey, opts...)
	case "production", "":
		client, err = paddle.New(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}

	return &PaddleGateway{
		client:    client,
		verifier:  paddle.NewWebhookVerifier(cfg.WebhookSecret),
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

func (g *PaddleGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if p.Plan.ProviderPriceID == "" {
		return nil, rejectedError("create_checkout_session", ErrMissingPriceID)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.Plan.ProviderPriceID,
		Quantity: 1,
	})
	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id": p.UserID,
			"plan_id": p.Plan.ID,
		},
	}
	if p.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(p.SuccessURL)}
	}

	txn, err := g.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, classifyPaddleError("create_checkout_session", err)
	}
	if txn.Checkout == nil || txn.Checkout.URL == nil || *txn.Checkout.URL == "" {
		return nil, rejectedError("create_checkout_session", ErrNoCheckoutURL)
	}

	out := &CheckoutSession{SessionID: txn.ID, RedirectURL: *txn.Checkout.URL}
	if txn.SubscriptionID != nil {
		out.ProviderSubscriptionID = *txn.SubscriptionID
	}
	return out, nil
}

func (g *PaddleGateway) CancelRecurringBilling(ctx context.Context, providerSubscriptionID string) error {
	_, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: providerSubscriptionID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
	})
	if err != nil {
		return classifyPaddleError("cancel_recurring_billing", err)
	}
	return nil
}

func (g *PaddleGateway) LookupSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	txn, err := g.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: sessionID,
	})
	if err != nil {
		return nil, classifyPaddleError("lookup_session", err)
	}

	info := &SessionInfo{SessionID: txn.ID, Status: string(txn.Status)}
	if txn.SubscriptionID != nil {
		info.ProviderSubscriptionID = *txn.SubscriptionID
	}
	return info, nil
}

type paddleNotification struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID             string `json:"id"`
		SubscriptionID string `json:"subscription_id"`
	} `json:"data"`
}

func (g *PaddleGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, PaddleSignatureHeader)
	}
	if err := g.checkTimestamp(signatureHeader); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	req.Header.Set(PaddleSignatureHeader, signatureHeader)

	valid, err := g.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	meta := EventMeta{ID: n.EventID, Type: n.EventType}

	switch n.EventType {
	case "transaction.completed":
		return CheckoutCompleted{EventMeta: meta, SessionID: n.Data.ID, ProviderSubscriptionID: n.Data.SubscriptionID}, nil
	case "transaction.payment_failed":
		return PaymentFailed{EventMeta: meta, ProviderSubscriptionID: n.Data.SubscriptionID}, nil
	case "subscription.canceled":
		return SubscriptionDeleted{EventMeta: meta, ProviderSubscriptionID: n.Data.ID}, nil
	}
	return Unhandled{EventMeta: meta}, nil
}

// checkTimestamp enforces the tolerance window on the "ts=" part of a
// "ts=<unix>;h1=<hex>" header.
func (g *PaddleGateway) checkTimestamp(header string) error {
	for part := range strings.SplitSeq(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key != "ts" {
			continue
		}
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
		}
		age := g.now().Sub(time.Unix(ts, 0))
		if age > g.tolerance || age < -g.tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
		return nil
	}
	return fmt.Errorf("%w: missing timestamp", ErrInvalidSignature)
}

var paddleAlreadyCanceledCodes = map[string]bool{
	"subscription_is_canceled_action_invalid": true,
	"not_found": true,
}

// classifyPaddleError maps Paddle API errors onto gateway error kinds.
// Responses that are not Paddle error documents are transport failures.
func classifyPaddleError(op string, err error) error {
	var pErr *paddleerr.Error
	if !errors.As(err, &pErr) {
		return transientError(op, err)
	}

	if op == "cancel_recurring_billing" && paddleAlreadyCanceledCodes[pErr.Code] {
		return alreadyCanceledError(op, err)
	}
	if string(pErr.Type) == "api_error" {
		return transientError(op, err)
	}
	return rejectedError(op, err)
}
