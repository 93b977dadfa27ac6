package subscription

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const maxLabelLen = 64

func sanitizeLabel(s string) string {
	if s == "" {
		return "none"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// Metrics is an Observer backed by Prometheus counters.
type Metrics struct {
	transitions  *prometheus.CounterVec
	events       *prometheus.CounterVec
	gatewayCalls *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "transitions_total",
				Help:      "Subscription status transitions by source status, target status and outcome",
			},
			[]string{"from", "to", "outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "webhook_events_total",
				Help:      "Verified provider events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		gatewayCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "gateway_calls_total",
				Help:      "Payment gateway calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.transitions, m.events, m.gatewayCalls} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) Transition(from, to Status, outcome Outcome) {
	m.transitions.WithLabelValues(sanitizeLabel(string(from)), sanitizeLabel(string(to)), string(outcome)).Inc()
}

func (m *Metrics) Event(eventType string, outcome Outcome) {
	m.events.WithLabelValues(sanitizeLabel(eventType), string(outcome)).Inc()
}

func (m *Metrics) GatewayCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			outcome = gwErr.Kind.String()
		} else {
			outcome = "error"
		}
	}
	m.gatewayCalls.WithLabelValues(op, outcome).Inc()
}
