package subscription

// Event is a verified provider notification. The set of implementations is
// closed: CheckoutCompleted, PaymentFailed, SubscriptionDeleted and
// Unhandled.
type Event interface {
	// EventID is the provider's unique id for the delivery.
	EventID() string
	// EventType is the provider's raw event type.
	EventType() string
	isEvent()
}

// EventMeta carries the fields shared by every event.
type EventMeta struct {
	ID   string
	Type string
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }
func (EventMeta) isEvent()            {}

// CheckoutCompleted reports a paid checkout that established recurring
// billing.
type CheckoutCompleted struct {
	EventMeta
	SessionID              string
	ProviderSubscriptionID string
}

// PaymentFailed reports a failed renewal charge.
type PaymentFailed struct {
	EventMeta
	ProviderSubscriptionID string
}

// SubscriptionDeleted reports billing ended on the provider side.
type SubscriptionDeleted struct {
	EventMeta
	ProviderSubscriptionID string
}

// Unhandled is any other verified event.
type Unhandled struct {
	EventMeta
}
