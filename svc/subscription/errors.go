package subscription

import (
	"errors"
	"fmt"
)

var (
	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrInvalidPlan          = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans    = errors.New("failed to load subscription plans")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrDuplicateSession     = errors.New("subscription with this provider session already exists")
	ErrMissingUserID        = errors.New("user ID is required")
	ErrMissingSessionID     = errors.New("checkout session ID is required")

	// ErrInvalidSignature is returned for every webhook that fails
	// authentication or cannot be parsed.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrGateway matches every *GatewayError.
	ErrGateway         = errors.New("payment gateway error")
	ErrAlreadyCanceled = errors.New("recurring billing already canceled")

	ErrMissingAPIKey        = errors.New("payment provider API key is required")
	ErrMissingWebhookSecret = errors.New("payment provider webhook secret is required")
	ErrMissingPriceID       = errors.New("plan has no provider price ID")
	ErrNoCheckoutURL        = errors.New("no checkout URL returned from provider")
)

// GatewayErrorKind classifies a payment gateway failure.
type GatewayErrorKind int

const (
	// GatewayTransient covers network failures, timeouts and provider 5xx.
	// Nothing was changed locally; the caller may retry.
	GatewayTransient GatewayErrorKind = iota
	// GatewayAlreadyCanceled means the provider holds no active billing for
	// the id. The engine treats it as success.
	GatewayAlreadyCanceled
	// GatewayRejected covers invalid credentials and malformed requests.
	GatewayRejected
)

func (k GatewayErrorKind) String() string {
	switch k {
	case GatewayTransient:
		return "transient"
	case GatewayAlreadyCanceled:
		return "already_canceled"
	case GatewayRejected:
		return "rejected"
	}
	return "unknown"
}

// GatewayError wraps a provider failure.
type GatewayError struct {
	Kind GatewayErrorKind
	Op   string
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is makes errors.Is match ErrGateway for any kind and ErrAlreadyCanceled
// for the already-canceled kind.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrGateway:
		return true
	case ErrAlreadyCanceled:
		return e.Kind == GatewayAlreadyCanceled
	}
	return false
}

func transientError(op string, err error) error {
	return &GatewayError{Kind: GatewayTransient, Op: op, Err: err}
}

func rejectedError(op string, err error) error {
	return &GatewayError{Kind: GatewayRejected, Op: op, Err: err}
}

func alreadyCanceledError(op string, err error) error {
	if err == nil {
		err = ErrAlreadyCanceled
	}
	return &GatewayError{Kind: GatewayAlreadyCanceled, Op: op, Err: err}
}

// IsTransient reports whether err is a retryable gateway failure.
func IsTransient(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == GatewayTransient
}

// IsAlreadyCanceled reports whether err says the remote billing is gone.
func IsAlreadyCanceled(err error) bool {
	return errors.Is(err, ErrAlreadyCanceled)
}
