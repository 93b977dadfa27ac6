// Package subscription implements the subscription lifecycle: plan catalog,
// payment gateway clients, persistence contracts and the engine that
// reconciles user requests with provider webhooks.
package subscription

import (
	"time"

	"github.com/dmitrymomot/subscription-api/pkg/statemachine"
)

// Status of a subscription record. Serialized as the bare string value.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

func (s Status) String() string { return string(s) }

// Subscription is one checkout attempt of a user and everything that happened
// to it afterwards. Records are never deleted; the most recently created one
// is the user's current subscription.
type Subscription struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"userId"`
	PlanID                 string    `json:"planId"`
	Status                 Status    `json:"status"`
	ProviderSessionID      string    `json:"providerSessionId"`
	ProviderSubscriptionID string    `json:"providerSubscriptionId,omitempty"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

func (s *Subscription) IsCanceled() bool { return s.Status == StatusCanceled }

type trigger string

const (
	triggerActivate trigger = "checkout_completed"
	triggerCancel   trigger = "cancel_requested"
)

// lifecycle is the only place that knows which status changes are legal.
var lifecycle = statemachine.MustNew(
	statemachine.Transition[Status, trigger]{From: StatusPending, Event: triggerActivate, To: StatusActive},
	statemachine.Transition[Status, trigger]{From: StatusActive, Event: triggerCancel, To: StatusCanceled},
).WithTerminal(StatusCanceled)
