package subscription

// Outcome labels what became of a transition attempt or an event.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeSkipped        Outcome = "skipped"
	OutcomeConflict       Outcome = "conflict"
	OutcomeUnknownSession Outcome = "unknown_session"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeFailed         Outcome = "failed"
)

// Observer receives engine telemetry. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Transition(from, to Status, outcome Outcome)
	Event(eventType string, outcome Outcome)
	GatewayCall(op string, err error)
}

type noopObserver struct{}

func (noopObserver) Transition(Status, Status, Outcome) {}
func (noopObserver) Event(string, Outcome)              {}
func (noopObserver) GatewayCall(string, error)          {}
