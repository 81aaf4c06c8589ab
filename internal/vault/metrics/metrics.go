package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the vault module.
type Metrics struct {
	Invocations        *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	ProposalsCreated   prometheus.Counter
	ProposalStatus     *prometheus.CounterVec
	Disbursed          *prometheus.CounterVec
	RecurringRuns      *prometheus.CounterVec
}

// New registers the vault metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Invocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_vault_invocations_total",
			Help: "Vault invocations by operation and result code",
		}, []string{"operation", "code"}),
		InvocationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "treasury_vault_invocation_duration_seconds",
			Help:    "Duration of vault invocations including commit",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		ProposalsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "treasury_proposals_created_total",
			Help: "Total number of transfer proposals created",
		}),
		ProposalStatus: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_proposal_transitions_total",
			Help: "Proposal status transitions by target status",
		}, []string{"status"}),
		Disbursed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_disbursed_amount_total",
			Help: "Sum of executed disbursements in base units by token and source",
		}, []string{"token", "source"}),
		RecurringRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_recurring_payments_total",
			Help: "Recurring payment attempts by result",
		}, []string{"result"}),
	}
}

// ObserveInvocation records one invocation and its outcome code ("ok" on success).
func (m *Metrics) ObserveInvocation(operation, code string, start time.Time) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(operation, code).Inc()
	m.InvocationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementProposalsCreated() {
	if m == nil {
		return
	}
	m.ProposalsCreated.Inc()
}

func (m *Metrics) IncrementTransition(status string) {
	if m == nil {
		return
	}
	m.ProposalStatus.WithLabelValues(status).Inc()
}

// AddDisbursed adds amount (already converted to float) to the token total.
func (m *Metrics) AddDisbursed(token, source string, amount float64) {
	if m == nil {
		return
	}
	m.Disbursed.WithLabelValues(token, source).Add(amount)
}

func (m *Metrics) IncrementRecurring(result string) {
	if m == nil {
		return
	}
	m.RecurringRuns.WithLabelValues(result).Inc()
}
