package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveInvocation("execute_proposal", "ok", time.Now())
	m.ObserveInvocation("execute_proposal", "timelock_not_expired", time.Now())
	m.IncrementProposalsCreated()
	m.IncrementTransition("approved")
	m.AddDisbursed("USDC", "proposal", 250)
	m.IncrementRecurring("paid")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations.WithLabelValues("execute_proposal", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProposalsCreated))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.Disbursed.WithLabelValues("USDC", "proposal")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveInvocation("x", "ok", time.Now())
		m.IncrementProposalsCreated()
		m.IncrementTransition("executed")
		m.AddDisbursed("USDC", "recurring", 1)
		m.IncrementRecurring("failed")
	})
}
