package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridready/core/factory"
	coremetrics "github.com/kilianp07/gridready/core/metrics"
	"github.com/kilianp07/gridready/core/model"
)

func TestPromSink_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordSweep(coremetrics.SweepEvent{PlantsChecked: 3, Skipped: 1, Duration: 20 * time.Millisecond}))
	require.NoError(t, s.RecordTransition(coremetrics.TransitionEvent{From: model.StatusNoAction, To: model.StatusPending, Operation: "evaluate"}))
	require.NoError(t, s.RecordTrigger(coremetrics.TriggerEvent{PlantID: "p1", Type: model.TriggerWeather, Severity: model.SeverityHigh}))
	require.NoError(t, s.RecordNotification(coremetrics.NotificationEvent{Type: model.NotificationTriggerAlert, Priority: model.PriorityHigh}))
	require.NoError(t, s.RecordStatusCounts(map[model.Status]int{model.StatusPending: 2}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.sweeps))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.skipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.transitions.WithLabelValues("NO_ACTION", "PENDING", "evaluate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.triggers.WithLabelValues("p1", "Weather", "HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.notifications.WithLabelValues("Trigger Alert", "HIGH")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.records.WithLabelValues("PENDING")))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, first.RecordSweep(coremetrics.SweepEvent{}))
	require.NoError(t, second.RecordSweep(coremetrics.SweepEvent{}))
	assert.Equal(t, 2.0, testutil.ToFloat64(second.sweeps))
}

func TestPromSink_FactoryLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(prometheus.WrapRegistererWith(prometheus.Labels{"site": "north"}, reg))
	require.NoError(t, err)
	require.NoError(t, s.RecordSweep(coremetrics.SweepEvent{}))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "readiness_sweeps_total" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		labels := mf.GetMetric()[0].GetLabel()
		require.Len(t, labels, 1)
		assert.Equal(t, "site", labels[0].GetName())
		assert.Equal(t, "north", labels[0].GetValue())
	}
	assert.True(t, found)
}

func TestInfluxSinkFactoryRequiresURL(t *testing.T) {
	_, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "influx", Conf: map[string]any{"bucket": "b"}}})
	assert.Error(t, err)
}
