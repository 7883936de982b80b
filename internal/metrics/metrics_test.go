package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ProposalTransitions.WithLabelValues("evaluate", OutcomeOK).Inc()
	m.AccessGrants.Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProposalTransitions.WithLabelValues("evaluate", OutcomeOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AccessGrants))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Panics(t, func() { New(reg) })
	assert.NotPanics(t, func() { New(nil) })
}
