package subscription

import "context"

// Store persists subscription records.
//
// UpdateStatus is the only way to change a record and is conditional: it
// applies next only if the stored status still equals expected at write time
// and reports whether it did. A non-empty providerSubscriptionID is written in
// the same atomic update; an empty one leaves the stored value untouched.
type Store interface {
	// Insert creates a pending record. It returns ErrDuplicateSession when
	// sessionID is already known.
	Insert(ctx context.Context, userID, planID, sessionID string) (*Subscription, error)
	// FindBySessionID returns ErrSubscriptionNotFound when absent.
	FindBySessionID(ctx context.Context, sessionID string) (*Subscription, error)
	// FindLatestByUser returns the most recently created record of the user
	// or ErrSubscriptionNotFound.
	FindLatestByUser(ctx context.Context, userID string) (*Subscription, error)
	UpdateStatus(ctx context.Context, id string, expected, next Status, providerSubscriptionID string) (bool, error)
}
