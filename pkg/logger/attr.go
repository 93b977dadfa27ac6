package logger

import "log/slog"

// Error records err under the key "error". Returns an empty Attr for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// EventType records a provider event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// EventID records a provider event id under the key "event_id".
func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

// SessionID records a checkout session id under the key "session_id".
func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

// SubscriptionID records a local subscription record id.
func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

// ProviderSubscriptionID records the provider's recurring billing id.
func ProviderSubscriptionID(id string) slog.Attr {
	return slog.String("provider_subscription_id", id)
}

// Transition records a state change as "from->to".
func Transition(from, to string) slog.Attr {
	return slog.String("transition", from+"->"+to)
}
