package arbiter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/arbiter/internal/model"
)

// Metrics counts arbitration outcomes. A nil *Metrics records nothing.
type Metrics struct {
	decisions          *prometheus.CounterVec
	quorumResolutions  prometheus.Counter
	singleSourceFlags  prometheus.Counter
	validationFailures *prometheus.CounterVec
}

// NewMetrics creates the arbitration counters and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbiter",
			Name:      "decisions_total",
			Help:      "Arbitration decisions by action and candidate tier.",
		}, []string{"action", "tier"}),
		quorumResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbiter",
			Name:      "quorum_resolutions_total",
			Help:      "Tier-4 fields settled by majority vote, counted at first finalization.",
		}),
		singleSourceFlags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arbiter",
			Name:      "single_source_warnings_total",
			Help:      "Tier-4 fields flagged as backed by a single source, counted at first finalization.",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbiter",
			Name:      "validation_failures_total",
			Help:      "Candidates rejected by field validation, by source tier.",
		}, []string{"tier"}),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.quorumResolutions, m.singleSourceFlags, m.validationFailures)
	}
	return m
}

func (m *Metrics) observeDecision(action model.Action, t model.Tier) {
	if m == nil {
		return
	}
	if action == model.ActionValidationFail {
		m.validationFailures.WithLabelValues(t.String()).Inc()
	}
	m.decisions.WithLabelValues(string(action), t.String()).Inc()
}

func (m *Metrics) observeFinalize(quorum, warnings int) {
	if m == nil {
		return
	}
	m.quorumResolutions.Add(float64(quorum))
	m.singleSourceFlags.Add(float64(warnings))
}
