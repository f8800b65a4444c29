// Package metrics exposes the session layer's Prometheus
// instrumentation. Grounded on the domain-stack wiring in
// SPEC_FULL.md §2 (added): the teacher itself ships no metrics
// package, so these vectors are modeled after the labels the teacher's
// own server/fsm.go logs on every transition (from/to state,
// notification error code) rather than invented from scratch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StateTransitions counts FSM transitions by originating and
// destination state, labeled the same way the teacher's
// logrus.WithFields(log.Fields{"from": ..., "to": ...}) calls are.
var StateTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bgpeer",
		Subsystem: "fsm",
		Name:      "state_transitions_total",
		Help:      "Number of FSM state transitions, by from/to state.",
	},
	[]string{"from", "to"},
)

// NotificationsSent counts outbound NOTIFICATION messages by error
// code, so a dashboard can tell a flapping peer from a misconfigured
// one at a glance.
var NotificationsSent = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bgpeer",
		Subsystem: "fsm",
		Name:      "notifications_sent_total",
		Help:      "Number of NOTIFICATION messages sent, by error code.",
	},
	[]string{"error_code"},
)
