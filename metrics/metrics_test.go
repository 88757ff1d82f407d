package metrics

import (
	"github.com/stretchr/testify/assert"
	"github.com/uber-go/tally/v4"
	"testing"
)

func TestNopScope(t *testing.T) {
	m := Nop()
	assert.NotPanics(t, func() {
		m.Scope.Counter("checkpoint").Inc(1)
	})
	assert.Nil(t, m.Registry)
	assert.Nil(t, m.Close())
}

func TestPrometheusExport(t *testing.T) {
	options := DefaultOptions
	options.Prometheus = true
	m := New(options)
	m.Scope.Counter("checkpoint").Inc(3)
	assert.Nil(t, m.Close())

	families, err := m.Registry.Gather()
	assert.Nil(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() == "streaming_state_checkpoint" {
			found = true
			assert.Equal(t, float64(3), family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestTestScopeSnapshot(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	scope.Counter("cache_hit").Inc(2)
	snapshot := scope.Snapshot().Counters()
	assert.Equal(t, int64(2), snapshot["cache_hit+"].Value())
}
