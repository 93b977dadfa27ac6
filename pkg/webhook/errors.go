package webhook

import "errors"

// Verification errors. All of them wrap ErrInvalidSignature so callers can
// classify any failure with a single errors.Is check.
var (
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrMissingSecret     = errors.New("webhook secret is required")
	ErrEmptyPayload      = errors.New("webhook payload cannot be empty")
	ErrMalformedHeader   = errors.Join(ErrInvalidSignature, errors.New("malformed signature header"))
	ErrTimestampExpired  = errors.Join(ErrInvalidSignature, errors.New("signature timestamp outside tolerance"))
	ErrSignatureMismatch = errors.Join(ErrInvalidSignature, errors.New("signature mismatch"))
)
