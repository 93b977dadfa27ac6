package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/subscription-api/handler"
	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

var (
	errPlanNotFound = handler.HTTPError{Code: http.StatusBadRequest, Key: "plan_not_found", Message: "Invalid plan"}
	errMissingPlan  = handler.HTTPError{Code: http.StatusBadRequest, Key: "plan_required", Message: "planId is required"}
	errInvalidEvent = handler.HTTPError{Code: http.StatusBadRequest, Key: "invalid_signature"}
	errProviderDown = handler.HTTPError{Code: http.StatusServiceUnavailable, Key: "payment_provider_unavailable", Message: "Payment provider is temporarily unavailable"}
	errProvider     = handler.HTTPError{Code: http.StatusBadGateway, Key: "payment_provider_error", Message: "Payment provider rejected the request"}
)

// invalidSession carries the failure reason in the error field.
func invalidSession(reason string) handler.HTTPError {
	return handler.HTTPError{Code: http.StatusBadRequest, Key: reason, Message: "Invalid session ID"}
}

// mapError translates engine errors into HTTP errors. Unknown errors fall
// through to 500.
func mapError(err error) error {
	switch {
	case errors.Is(err, subscription.ErrPlanNotFound):
		return errPlanNotFound
	case errors.Is(err, subscription.ErrMissingUserID):
		return handler.ErrUnauthorized
	case subscription.IsTransient(err):
		return errProviderDown
	case errors.Is(err, subscription.ErrGateway):
		return errProvider
	}
	return err
}
