package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridready/core/factory"
	metrics "github.com/kilianp07/gridready/core/metrics"
	_ "github.com/kilianp07/gridready/infra/metrics"
)

type countingSink struct {
	metrics.NopSink
	sweeps int
}

func (c *countingSink) RecordSweep(metrics.SweepEvent) error { c.sweeps++; return nil }

func init() {
	_ = metrics.RegisterMetricsSink("counting", func(map[string]any) (metrics.MetricsSink, error) {
		return &countingSink{}, nil
	})
}

func TestSinkTypesIncludeBuiltins(t *testing.T) {
	assert.Subset(t, metrics.SinkTypes(), []string{"influx", "nop", "prometheus"})
}

func TestNewMetricsSink(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s, "nop entries collapse")

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "counting"}})
	require.NoError(t, err)
	assert.IsType(t, &countingSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "counting"}, {Type: "counting"}})
	require.NoError(t, err)
	multi, ok := s.(*metrics.MultiSink)
	require.True(t, ok)
	assert.Len(t, multi.Sinks, 2)
	require.NoError(t, multi.RecordSweep(metrics.SweepEvent{}))
	for _, sub := range multi.Sinks {
		assert.Equal(t, 1, sub.(*countingSink).sweeps)
	}
}

func TestNewMetricsSinkUnknownType(t *testing.T) {
	_, err := metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "missing"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink 1 (missing)")
}
