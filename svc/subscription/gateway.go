package subscription

import "context"

// Gateway is the payment provider boundary. Implementations hold only
// configuration and are safe for concurrent use. Failures are returned as
// *GatewayError and never retried internally.
type Gateway interface {
	// CreateCheckoutSession opens a hosted checkout for a monthly recurring
	// charge of the plan's price. No local state is touched.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	// CancelRecurringBilling stops billing immediately. A provider answer of
	// "unknown or already canceled" is a GatewayAlreadyCanceled error.
	CancelRecurringBilling(ctx context.Context, providerSubscriptionID string) error
	// VerifyAndParseEvent authenticates the raw request body against the
	// signature header and decodes it. Every failure wraps ErrInvalidSignature.
	VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error)
	// LookupSession fetches a checkout session for display purposes.
	LookupSession(ctx context.Context, sessionID string) (*SessionInfo, error)
}

// CheckoutParams describes a checkout request.
type CheckoutParams struct {
	UserID     string
	Plan       Plan
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the provider's answer to CreateCheckoutSession.
// ProviderSubscriptionID is only set by providers that create the billing
// object up front; the engine still records it on activation only.
type CheckoutSession struct {
	SessionID              string
	RedirectURL            string
	ProviderSubscriptionID string
}

// SessionInfo is a read-only view of a checkout session.
type SessionInfo struct {
	SessionID              string `json:"sessionId"`
	Status                 string `json:"status"`
	PaymentStatus          string `json:"paymentStatus,omitempty"`
	ProviderSubscriptionID string `json:"providerSubscriptionId,omitempty"`
}
