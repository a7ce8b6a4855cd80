// Package metrics exposes prometheus collectors for the move engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

const namespace = "sprintboard"

// Reconciliation results
const (
	ReconcileApplied   = "applied"
	ReconcileDiscarded = "discarded"
	ReconcileFailed    = "failed"
)

// Metrics groups the move engine's collectors
type Metrics struct {
	moves           *prometheus.CounterVec
	moveDuration    *prometheus.HistogramVec
	remoteCalls     *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	state           *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_total",
			Help:      "Move attempts by outcome and reason.",
		}, []string{"outcome", "reason"}),
		moveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "move_duration_seconds",
			Help:      "Time from accepting a move to its outcome, excluding reconciliation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote move client calls by operation and result.",
		}, []string{"op", "result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Reconciliation fetches by result.",
		}, []string{"result"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orchestrator_state",
			Help:      "1 for the orchestrator's current state, 0 otherwise.",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(m.moves, m.moveDuration, m.remoteCalls, m.reconciliations, m.state)
	}
	return m
}

// ObserveMove records a finished move
func (m *Metrics) ObserveMove(outcome domain.MoveOutcome, d time.Duration) {
	if m == nil {
		return
	}
	m.moves.WithLabelValues(string(outcome.Kind), ReasonLabel(outcome)).Inc()
	m.moveDuration.WithLabelValues(string(outcome.Kind)).Observe(d.Seconds())
}

// ObserveRemoteCall records one remote client call
func (m *Metrics) ObserveRemoteCall(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.remoteCalls.WithLabelValues(op, result).Inc()
}

// ObserveReconcile records a reconciliation attempt
func (m *Metrics) ObserveReconcile(result string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(result).Inc()
}

// SetState marks state as current among all states
func (m *Metrics) SetState(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// ReasonLabel bounds the reason label to known values; free-form remote
// error text collapses to "remote_failure".
func ReasonLabel(outcome domain.MoveOutcome) string {
	switch outcome.Reason {
	case "":
		return "none"
	case domain.ReasonNoop, domain.ReasonSprintClosed, domain.ReasonTargetInvalid,
		domain.ReasonTargetNotFound, domain.ReasonSourceMismatch, domain.ReasonBusy,
		domain.ReasonCancelled, domain.ReasonClosed:
		return outcome.Reason
	}
	return "remote_failure"
}
